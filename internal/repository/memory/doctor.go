package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	apperrors "github.com/careloop/consult-api/pkg/errors"
)

// DoctorRepository is exported so tests and the dev-mode wiring can seed it.
type DoctorRepository struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]*model.Doctor
}

func NewDoctorRepository() *DoctorRepository {
	return &DoctorRepository{doctors: make(map[uuid.UUID]*model.Doctor)}
}

// Put inserts or replaces a doctor record.
func (r *DoctorRepository) Put(d *model.Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *d
	r.doctors[d.ID] = &copy
}

func (r *DoctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, apperrors.NotFound("doctor", nil)
	}
	copy := *d
	return &copy, nil
}

func (r *DoctorRepository) ListActive(ctx context.Context) ([]*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Doctor
	for _, d := range r.doctors {
		if d.Assignable() {
			copy := *d
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (r *DoctorRepository) ListActiveBySpecializations(ctx context.Context, specs []model.Specialization) ([]*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[model.Specialization]bool, len(specs))
	for _, s := range specs {
		wanted[s] = true
	}
	var out []*model.Doctor
	for _, d := range r.doctors {
		if d.Assignable() && wanted[d.Specialization] {
			copy := *d
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (r *DoctorRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return apperrors.NotFound("doctor", nil)
	}
	d.Blocked = blocked
	d.UpdatedAt = time.Now()
	return nil
}

func (r *DoctorRepository) CreditEarnings(ctx context.Context, id uuid.UUID, amountCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return apperrors.NotFound("doctor", nil)
	}
	d.EarningsCents += amountCents
	d.UpdatedAt = time.Now()
	return nil
}
