package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository/memory"
	apperrors "github.com/careloop/consult-api/pkg/errors"
)

func seedConsultation(t *testing.T, repo interface {
	Create(ctx context.Context, c *model.Consultation) error
}) *model.Consultation {
	t.Helper()
	c := &model.Consultation{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		Medicine:    "metformin",
		Concern:     model.ConcernDosageQuestion,
		Description: "dosage check",
		Status:      model.ConsultationStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func TestUpdateConditionalStaleStatusConflicts(t *testing.T) {
	repo := memory.NewConsultationRepository()
	ctx := context.Background()
	c := seedConsultation(t, repo)

	_, err := repo.UpdateConditional(ctx, c.ID, model.ConsultationStatusPending, func(c *model.Consultation) error {
		c.Status = model.ConsultationStatusRejected
		return nil
	})
	require.NoError(t, err)

	// Same observed status again: the record has moved on.
	_, err = repo.UpdateConditional(ctx, c.ID, model.ConsultationStatusPending, func(c *model.Consultation) error {
		c.Status = model.ConsultationStatusCancelled
		return nil
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusRejected, got.Status)
}

func TestUpdateConditionalFailedMutatorLeavesRecordUntouched(t *testing.T) {
	repo := memory.NewConsultationRepository()
	ctx := context.Background()
	c := seedConsultation(t, repo)

	_, err := repo.UpdateConditional(ctx, c.ID, model.ConsultationStatusPending, func(c *model.Consultation) error {
		c.Status = model.ConsultationStatusAccepted
		return apperrors.PreconditionFailed("nope")
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusPending, got.Status)
}

func TestUpdateConditionalMissingRecord(t *testing.T) {
	repo := memory.NewConsultationRepository()

	_, err := repo.UpdateConditional(context.Background(), uuid.New(), model.ConsultationStatusPending, func(c *model.Consultation) error {
		return nil
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	repo := memory.NewConsultationRepository()
	ctx := context.Background()
	c := seedConsultation(t, repo)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	got.Status = model.ConsultationStatusCancelled
	got.Medicine = "mutated"

	fresh, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsultationStatusPending, fresh.Status)
	assert.Equal(t, "metformin", fresh.Medicine)
}
