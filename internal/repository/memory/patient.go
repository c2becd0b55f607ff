package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	apperrors "github.com/careloop/consult-api/pkg/errors"
)

// PatientRepository is exported so tests and the dev-mode wiring can seed it.
type PatientRepository struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*model.Patient
}

func NewPatientRepository() *PatientRepository {
	return &PatientRepository{patients: make(map[uuid.UUID]*model.Patient)}
}

func (r *PatientRepository) Put(p *model.Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *p
	r.patients[p.ID] = &copy
}

func (r *PatientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	copy := *p
	return &copy, nil
}
