package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	apperrors "github.com/careloop/consult-api/pkg/errors"
)

const complaintColumns = `
	id, patient_id, doctor_id, category, description, status,
	resolution, action_taken, resolved_by, resolved_at, created_at`

func (r *complaintRepository) Create(ctx context.Context, c *model.Complaint) error {
	query := `
		INSERT INTO complaints (` + complaintColumns + `
		) VALUES (
			:id, :patient_id, :doctor_id, :category, :description, :status,
			:resolution, :action_taken, :resolved_by, :resolved_at, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("failed to create complaint: %w", err)
	}
	return nil
}

func (r *complaintRepository) Get(ctx context.Context, id uuid.UUID) (*model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`

	var c model.Complaint
	err := r.db.GetContext(ctx, &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("complaint", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get complaint: %w", err)
	}
	return &c, nil
}

// Resolve is conditional on the complaint still being under review, so a
// resolved complaint can never be re-opened or re-resolved.
func (r *complaintRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, resolution string, action model.ComplaintAction) (*model.Complaint, error) {
	query := `
		UPDATE complaints
		SET status = $1, resolution = $2, action_taken = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $6 AND status = $7
	`
	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		model.ComplaintStatusResolved,
		resolution,
		action,
		resolvedBy,
		now,
		id,
		model.ComplaintStatusUnderReview,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve complaint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either absent or already resolved; Get disambiguates.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.Conflict("complaint")
	}

	return r.Get(ctx, id)
}

func (r *complaintRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE doctor_id = $1 ORDER BY created_at DESC`

	var complaints []*model.Complaint
	if err := r.db.SelectContext(ctx, &complaints, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}
	return complaints, nil
}

func (r *complaintRepository) ListOpen(ctx context.Context) ([]*model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE status = $1 ORDER BY created_at ASC`

	var complaints []*model.Complaint
	if err := r.db.SelectContext(ctx, &complaints, query, model.ComplaintStatusUnderReview); err != nil {
		return nil, fmt.Errorf("failed to list open complaints: %w", err)
	}
	return complaints, nil
}
