package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
)

// HealthProfileReader serves seeded health profiles. Snapshot stamps the
// capture time so stored snapshots are clearly point-in-time copies.
type HealthProfileReader struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*model.HealthSnapshot
}

func NewHealthProfileReader() *HealthProfileReader {
	return &HealthProfileReader{profiles: make(map[uuid.UUID]*model.HealthSnapshot)}
}

func (r *HealthProfileReader) Put(patientID uuid.UUID, snap *model.HealthSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *snap
	r.profiles[patientID] = &copy
}

func (r *HealthProfileReader) Snapshot(ctx context.Context, patientID uuid.UUID) (*model.HealthSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.profiles[patientID]
	if !ok {
		// An absent profile is not an error; the snapshot is simply empty.
		return &model.HealthSnapshot{CapturedAt: time.Now()}, nil
	}
	copy := *snap
	copy.CapturedAt = time.Now()
	return &copy, nil
}
