package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
	apperrors "github.com/careloop/consult-api/pkg/errors"
)

type complaintRepository struct {
	mu         sync.RWMutex
	complaints map[uuid.UUID]*model.Complaint
}

func NewComplaintRepository() repository.ComplaintRepository {
	return &complaintRepository{complaints: make(map[uuid.UUID]*model.Complaint)}
}

func (r *complaintRepository) Create(ctx context.Context, c *model.Complaint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *c
	r.complaints[c.ID] = &copy
	return nil
}

func (r *complaintRepository) Get(ctx context.Context, id uuid.UUID) (*model.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.complaints[id]
	if !ok {
		return nil, apperrors.NotFound("complaint", nil)
	}
	copy := *c
	return &copy, nil
}

// Resolve moves under_review to resolved; a complaint already resolved
// reports Conflict so resolution stays terminal.
func (r *complaintRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, resolution string, action model.ComplaintAction) (*model.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.complaints[id]
	if !ok {
		return nil, apperrors.NotFound("complaint", nil)
	}
	if c.Status != model.ComplaintStatusUnderReview {
		return nil, apperrors.Conflict("complaint")
	}
	now := time.Now()
	c.Status = model.ComplaintStatusResolved
	c.Resolution = &resolution
	c.ActionTaken = &action
	c.ResolvedBy = &resolvedBy
	c.ResolvedAt = &now
	copy := *c
	return &copy, nil
}

func (r *complaintRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Complaint
	for _, c := range r.complaints {
		if c.DoctorID == doctorID {
			copy := *c
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (r *complaintRepository) ListOpen(ctx context.Context) ([]*model.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Complaint
	for _, c := range r.complaints {
		if c.Status == model.ComplaintStatusUnderReview {
			copy := *c
			out = append(out, &copy)
		}
	}
	return out, nil
}
