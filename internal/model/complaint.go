package model

import (
	"time"

	"github.com/google/uuid"
)

type ComplaintStatus string

const (
	ComplaintStatusUnderReview ComplaintStatus = "under_review"
	ComplaintStatusResolved    ComplaintStatus = "resolved"
)

type ComplaintCategory string

const (
	ComplaintCategoryUnprofessional ComplaintCategory = "unprofessional_conduct"
	ComplaintCategoryMisdiagnosis   ComplaintCategory = "misdiagnosis"
	ComplaintCategoryNoShow         ComplaintCategory = "no_show"
	ComplaintCategoryOther          ComplaintCategory = "other"
)

type ComplaintAction string

const (
	ComplaintActionNone          ComplaintAction = "none"
	ComplaintActionWarning       ComplaintAction = "warning"
	ComplaintActionDoctorBlocked ComplaintAction = "doctor_blocked"
)

const (
	ComplaintDescriptionMinLen = 50
	ComplaintDescriptionMaxLen = 2000
)

type Complaint struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Category    ComplaintCategory `db:"category" json:"category"`
	Description string            `db:"description" json:"description"`
	Status      ComplaintStatus   `db:"status" json:"status"`
	Resolution  *string           `db:"resolution" json:"resolution,omitempty"`
	ActionTaken *ComplaintAction  `db:"action_taken" json:"action_taken,omitempty"`
	ResolvedBy  *uuid.UUID        `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time        `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

type FileComplaintRequest struct {
	DoctorID    uuid.UUID         `json:"doctor_id" binding:"required"`
	Category    ComplaintCategory `json:"category" binding:"required,oneof=unprofessional_conduct misdiagnosis no_show other"`
	Description string            `json:"description" binding:"required"`
}

type ResolveComplaintRequest struct {
	Resolution  string          `json:"resolution" binding:"required,max=2000"`
	ActionTaken ComplaintAction `json:"action_taken" binding:"required,oneof=none warning doctor_blocked"`
}
