package model

import (
	"time"

	"github.com/google/uuid"
)

type Specialization string

const (
	SpecializationPharmacology     Specialization = "pharmacology"
	SpecializationGeneralPractice  Specialization = "general_practice"
	SpecializationToxicology       Specialization = "toxicology"
	SpecializationInternalMedicine Specialization = "internal_medicine"
	SpecializationPsychiatry       Specialization = "psychiatry"
)

type Doctor struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Email          string         `db:"email" json:"email"`
	Specialization Specialization `db:"specialization" json:"specialization"`
	FeeCents       int64          `db:"fee_cents" json:"fee_cents"`
	EarningsCents  int64          `db:"earnings_cents" json:"earnings_cents"`
	Active         bool           `db:"active" json:"active"`
	Blocked        bool           `db:"blocked" json:"blocked"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Assignable reports whether new consultations may be routed to the doctor.
func (d *Doctor) Assignable() bool {
	return d.Active && !d.Blocked
}
