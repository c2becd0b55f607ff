package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careloop/consult-api/internal/model"
	apperrors "github.com/careloop/consult-api/pkg/errors"
)

const consultationColumns = `
	id, patient_id, patient_name, doctor_id, doctor_name,
	medicine, concern, description, preferred_time, share_health_data, health_snapshot,
	scheduled_time, meeting_link, reschedule_reason, rescheduled_by, rescheduled_at,
	requires_confirmation, awaiting_doctor_link, previous_scheduled_time,
	patient_requested_changes, edit_count, last_edited_at,
	doctor_response, responded_at, cancel_reason, fee_cents,
	status, created_at, updated_at`

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	query := `
		INSERT INTO consultations (` + consultationColumns + `
		) VALUES (
			:id, :patient_id, :patient_name, :doctor_id, :doctor_name,
			:medicine, :concern, :description, :preferred_time, :share_health_data, :health_snapshot,
			:scheduled_time, :meeting_link, :reschedule_reason, :rescheduled_by, :rescheduled_at,
			:requires_confirmation, :awaiting_doctor_link, :previous_scheduled_time,
			:patient_requested_changes, :edit_count, :last_edited_at,
			:doctor_response, :responded_at, :cancel_reason, :fee_cents,
			:status, :created_at, :updated_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("failed to create consultation: %w", err)
	}
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`

	var c model.Consultation
	err := r.db.GetContext(ctx, &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("consultation", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	return &c, nil
}

// UpdateConditional loads the row under a row lock, verifies the stored
// status still matches expected, then writes the mutated record. A mismatch
// reports Conflict and leaves the row untouched; a failed mutator rolls back.
func (r *consultationRepository) UpdateConditional(ctx context.Context, id uuid.UUID, expected model.ConsultationStatus, mutate func(*model.Consultation) error) (*model.Consultation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var c model.Consultation
	err = tx.GetContext(ctx, &c, `SELECT `+consultationColumns+` FROM consultations WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("consultation", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock consultation: %w", err)
	}

	if c.Status != expected {
		return nil, apperrors.Conflict("consultation")
	}

	if err := mutate(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()

	query := `
		UPDATE consultations SET
			doctor_id = :doctor_id, doctor_name = :doctor_name,
			medicine = :medicine, concern = :concern, description = :description,
			preferred_time = :preferred_time,
			scheduled_time = :scheduled_time, meeting_link = :meeting_link,
			reschedule_reason = :reschedule_reason, rescheduled_by = :rescheduled_by,
			rescheduled_at = :rescheduled_at,
			requires_confirmation = :requires_confirmation,
			awaiting_doctor_link = :awaiting_doctor_link,
			previous_scheduled_time = :previous_scheduled_time,
			patient_requested_changes = :patient_requested_changes,
			edit_count = :edit_count, last_edited_at = :last_edited_at,
			doctor_response = :doctor_response, responded_at = :responded_at,
			cancel_reason = :cancel_reason, status = :status, updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, query, &c); err != nil {
		return nil, fmt.Errorf("failed to update consultation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit consultation update: %w", err)
	}
	return &c, nil
}

func (r *consultationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM consultations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete consultation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("consultation", nil)
	}
	return nil
}

func (r *consultationRepository) ListForPatient(ctx context.Context, patientID uuid.UUID, status model.ConsultationStatus) ([]*model.Consultation, error) {
	return r.list(ctx, "patient_id", patientID, status)
}

func (r *consultationRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID, status model.ConsultationStatus) ([]*model.Consultation, error) {
	return r.list(ctx, "doctor_id", doctorID, status)
}

func (r *consultationRepository) list(ctx context.Context, ownerColumn string, ownerID uuid.UUID, status model.ConsultationStatus) ([]*model.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE ` + ownerColumn + ` = $1`
	args := []interface{}{ownerID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	var consultations []*model.Consultation
	if err := r.db.SelectContext(ctx, &consultations, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}
	return consultations, nil
}

func (r *consultationRepository) ListOpenForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Consultation, error) {
	query := `
		SELECT ` + consultationColumns + `
		FROM consultations
		WHERE doctor_id = $1
		AND status IN ('pending', 'in_review', 'accepted', 'rescheduled')
		ORDER BY created_at ASC
	`
	var consultations []*model.Consultation
	if err := r.db.SelectContext(ctx, &consultations, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to list open consultations: %w", err)
	}
	return consultations, nil
}

func (r *consultationRepository) CountOpenForDoctors(ctx context.Context, doctorIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	query, args, err := sqlx.In(`
		SELECT doctor_id, COUNT(*) AS open_count
		FROM consultations
		WHERE doctor_id IN (?)
		AND status IN ('pending', 'in_review')
		GROUP BY doctor_id
	`, doctorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build count query: %w", err)
	}

	rows := []struct {
		DoctorID  uuid.UUID `db:"doctor_id"`
		OpenCount int       `db:"open_count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to count open consultations: %w", err)
	}

	counts := make(map[uuid.UUID]int, len(doctorIDs))
	for _, id := range doctorIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.DoctorID] = row.OpenCount
	}
	return counts, nil
}

func (r *consultationRepository) HasCompletedOrAccepted(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM consultations
			WHERE patient_id = $1 AND doctor_id = $2
			AND status IN ('accepted', 'completed')
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, patientID, doctorID); err != nil {
		return false, fmt.Errorf("failed to check consultation history: %w", err)
	}
	return exists, nil
}
