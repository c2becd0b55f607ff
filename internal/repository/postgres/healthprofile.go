package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/careloop/consult-api/internal/model"
)

// Snapshot assembles a point-in-time copy of the patient's health profile.
// The reader never writes back to the profile tables.
func (r *healthProfileReader) Snapshot(ctx context.Context, patientID uuid.UUID) (*model.HealthSnapshot, error) {
	snap := &model.HealthSnapshot{CapturedAt: time.Now()}

	profile := struct {
		Conditions pq.StringArray `db:"conditions"`
		Allergies  pq.StringArray `db:"allergies"`
	}{}
	err := r.db.GetContext(ctx, &profile, `
		SELECT conditions, allergies
		FROM health_profiles
		WHERE patient_id = $1
	`, patientID)
	if err == nil {
		snap.Conditions = []string(profile.Conditions)
		snap.Allergies = []string(profile.Allergies)
	}

	adherence := []model.AdherenceEntry{}
	err = r.db.SelectContext(ctx, &adherence, `
		SELECT medicine, dosage, taken_count, missed_count, last_taken
		FROM medicine_adherence
		WHERE patient_id = $1
		ORDER BY last_taken DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to read adherence history: %w", err)
	}
	snap.Adherence = adherence

	past := []model.ConsultationSummary{}
	err = r.db.SelectContext(ctx, &past, `
		SELECT id, doctor_name, medicine, status AS outcome, created_at AS occurred_at
		FROM consultations
		WHERE patient_id = $1 AND status IN ('completed', 'rejected', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 20
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to read past consultations: %w", err)
	}
	snap.PastConsults = past

	return snap, nil
}
