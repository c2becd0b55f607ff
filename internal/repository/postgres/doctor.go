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

const doctorColumns = `
	id, name, email, specialization, fee_cents, earnings_cents,
	active, blocked, created_at, updated_at`

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`

	var d model.Doctor
	err := r.db.GetContext(ctx, &d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("doctor", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return &d, nil
}

func (r *doctorRepository) ListActive(ctx context.Context) ([]*model.Doctor, error) {
	query := `
		SELECT ` + doctorColumns + `
		FROM doctors
		WHERE active = true AND blocked = false
		ORDER BY id ASC
	`
	var doctors []*model.Doctor
	if err := r.db.SelectContext(ctx, &doctors, query); err != nil {
		return nil, fmt.Errorf("failed to list active doctors: %w", err)
	}
	return doctors, nil
}

func (r *doctorRepository) ListActiveBySpecializations(ctx context.Context, specs []model.Specialization) ([]*model.Doctor, error) {
	query, args, err := sqlx.In(`
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE active = true AND blocked = false
		AND specialization IN (?)
		ORDER BY id ASC
	`, specs)
	if err != nil {
		return nil, fmt.Errorf("failed to build doctor query: %w", err)
	}

	var doctors []*model.Doctor
	if err := r.db.SelectContext(ctx, &doctors, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list doctors by specialization: %w", err)
	}
	return doctors, nil
}

func (r *doctorRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	query := `UPDATE doctors SET blocked = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, blocked, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set doctor blocked flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("doctor", nil)
	}
	return nil
}

func (r *doctorRepository) CreditEarnings(ctx context.Context, id uuid.UUID, amountCents int64) error {
	query := `UPDATE doctors SET earnings_cents = earnings_cents + $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, amountCents, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to credit doctor earnings: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("doctor", nil)
	}
	return nil
}
