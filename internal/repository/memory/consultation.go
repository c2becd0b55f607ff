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

type consultationRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.Consultation
}

func NewConsultationRepository() repository.ConsultationRepository {
	return &consultationRepository{records: make(map[uuid.UUID]*model.Consultation)}
}

func cloneConsultation(c *model.Consultation) *model.Consultation {
	out := *c
	out.PreferredTime = cloneTime(c.PreferredTime)
	out.ScheduledTime = cloneTime(c.ScheduledTime)
	out.RescheduledAt = cloneTime(c.RescheduledAt)
	out.PreviousScheduledTime = cloneTime(c.PreviousScheduledTime)
	out.LastEditedAt = cloneTime(c.LastEditedAt)
	out.RespondedAt = cloneTime(c.RespondedAt)
	out.MeetingLink = cloneString(c.MeetingLink)
	out.RescheduleReason = cloneString(c.RescheduleReason)
	out.DoctorResponse = cloneString(c.DoctorResponse)
	out.CancelReason = cloneString(c.CancelReason)
	if c.RescheduledBy != nil {
		by := *c.RescheduledBy
		out.RescheduledBy = &by
	}
	if c.HealthSnapshot != nil {
		snap := *c.HealthSnapshot
		out.HealthSnapshot = &snap
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[c.ID] = cloneConsultation(c)
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("consultation", nil)
	}
	return cloneConsultation(c), nil
}

func (r *consultationRepository) UpdateConditional(ctx context.Context, id uuid.UUID, expected model.ConsultationStatus, mutate func(*model.Consultation) error) (*model.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[id]
	if !ok {
		return nil, apperrors.NotFound("consultation", nil)
	}
	if stored.Status != expected {
		return nil, apperrors.Conflict("consultation")
	}

	// Mutate a copy so a failed mutator leaves the record untouched.
	next := cloneConsultation(stored)
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	r.records[id] = next

	return cloneConsultation(next), nil
}

func (r *consultationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return apperrors.NotFound("consultation", nil)
	}
	delete(r.records, id)
	return nil
}

func (r *consultationRepository) ListForPatient(ctx context.Context, patientID uuid.UUID, status model.ConsultationStatus) ([]*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Consultation
	for _, c := range r.records {
		if c.PatientID != patientID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, cloneConsultation(c))
	}
	return out, nil
}

func (r *consultationRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID, status model.ConsultationStatus) ([]*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Consultation
	for _, c := range r.records {
		if c.DoctorID != doctorID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, cloneConsultation(c))
	}
	return out, nil
}

func (r *consultationRepository) ListOpenForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Consultation
	for _, c := range r.records {
		if c.DoctorID == doctorID && c.Status.IsOpen() {
			out = append(out, cloneConsultation(c))
		}
	}
	return out, nil
}

func (r *consultationRepository) CountOpenForDoctors(ctx context.Context, doctorIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[uuid.UUID]int, len(doctorIDs))
	for _, id := range doctorIDs {
		counts[id] = 0
	}
	for _, c := range r.records {
		if _, ok := counts[c.DoctorID]; !ok {
			continue
		}
		if c.Status == model.ConsultationStatusPending || c.Status == model.ConsultationStatusInReview {
			counts[c.DoctorID]++
		}
	}
	return counts, nil
}

func (r *consultationRepository) HasCompletedOrAccepted(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.records {
		if c.PatientID != patientID || c.DoctorID != doctorID {
			continue
		}
		if c.Status == model.ConsultationStatusAccepted || c.Status == model.ConsultationStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}
