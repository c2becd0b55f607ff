package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HealthSnapshot is a point-in-time copy of the patient's health profile
// taken when a consultation is requested with share_health_data set. It is
// stored on the consultation row and never refreshed from the source.
type HealthSnapshot struct {
	CapturedAt   time.Time             `json:"captured_at"`
	Conditions   []string              `json:"conditions,omitempty"`
	Allergies    []string              `json:"allergies,omitempty"`
	Adherence    []AdherenceEntry      `json:"adherence,omitempty"`
	PastConsults []ConsultationSummary `json:"past_consultations,omitempty"`
}

type AdherenceEntry struct {
	Medicine    string    `db:"medicine" json:"medicine"`
	Dosage      string    `db:"dosage" json:"dosage"`
	TakenCount  int       `db:"taken_count" json:"taken_count"`
	MissedCount int       `db:"missed_count" json:"missed_count"`
	LastTaken   time.Time `db:"last_taken" json:"last_taken"`
}

type ConsultationSummary struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DoctorName string    `db:"doctor_name" json:"doctor_name"`
	Medicine   string    `db:"medicine" json:"medicine"`
	Outcome    string    `db:"outcome" json:"outcome"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

// Value implements driver.Valuer so the snapshot persists as jsonb.
func (h *HealthSnapshot) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *HealthSnapshot) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into HealthSnapshot", src)
	}
	return json.Unmarshal(b, h)
}
