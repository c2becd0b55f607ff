package model

import (
	"time"

	"github.com/google/uuid"
)

type ConsultationStatus string

const (
	ConsultationStatusPending     ConsultationStatus = "pending"
	ConsultationStatusInReview    ConsultationStatus = "in_review"
	ConsultationStatusAccepted    ConsultationStatus = "accepted"
	ConsultationStatusRescheduled ConsultationStatus = "rescheduled"
	ConsultationStatusRejected    ConsultationStatus = "rejected"
	ConsultationStatusCancelled   ConsultationStatus = "cancelled"
	ConsultationStatusCompleted   ConsultationStatus = "completed"
)

// IsTerminal reports whether no further transition can leave the status.
func (s ConsultationStatus) IsTerminal() bool {
	switch s {
	case ConsultationStatusRejected, ConsultationStatusCancelled, ConsultationStatusCompleted:
		return true
	}
	return false
}

// IsOpen reports whether the consultation still occupies the doctor.
func (s ConsultationStatus) IsOpen() bool {
	switch s {
	case ConsultationStatusPending, ConsultationStatusInReview,
		ConsultationStatusAccepted, ConsultationStatusRescheduled:
		return true
	}
	return false
}

type ConcernCategory string

const (
	ConcernDosageQuestion   ConcernCategory = "dosage_question"
	ConcernSideEffects      ConcernCategory = "side_effects"
	ConcernDrugInteraction  ConcernCategory = "drug_interaction"
	ConcernChronicCondition ConcernCategory = "chronic_condition"
	ConcernMentalHealth     ConcernCategory = "mental_health"
	ConcernOther            ConcernCategory = "other"
)

type RescheduledBy string

const (
	RescheduledByPatient RescheduledBy = "patient"
	RescheduledByDoctor  RescheduledBy = "doctor"
)

type Consultation struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName string    `db:"patient_name" json:"patient_name"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName  string    `db:"doctor_name" json:"doctor_name"`

	Medicine        string          `db:"medicine" json:"medicine"`
	Concern         ConcernCategory `db:"concern" json:"concern"`
	Description     string          `db:"description" json:"description"`
	PreferredTime   *time.Time      `db:"preferred_time" json:"preferred_time,omitempty"`
	ShareHealthData bool            `db:"share_health_data" json:"share_health_data"`
	HealthSnapshot  *HealthSnapshot `db:"health_snapshot" json:"health_snapshot,omitempty"`

	ScheduledTime           *time.Time     `db:"scheduled_time" json:"scheduled_time,omitempty"`
	MeetingLink             *string        `db:"meeting_link" json:"meeting_link,omitempty"`
	RescheduleReason        *string        `db:"reschedule_reason" json:"reschedule_reason,omitempty"`
	RescheduledBy           *RescheduledBy `db:"rescheduled_by" json:"rescheduled_by,omitempty"`
	RescheduledAt           *time.Time     `db:"rescheduled_at" json:"rescheduled_at,omitempty"`
	RequiresConfirmation    bool           `db:"requires_confirmation" json:"requires_confirmation"`
	AwaitingDoctorLink      bool           `db:"awaiting_doctor_link" json:"awaiting_doctor_link"`
	PreviousScheduledTime   *time.Time     `db:"previous_scheduled_time" json:"previous_scheduled_time,omitempty"`
	PatientRequestedChanges bool           `db:"patient_requested_changes" json:"patient_requested_changes"`
	EditCount               int            `db:"edit_count" json:"edit_count"`
	LastEditedAt            *time.Time     `db:"last_edited_at" json:"last_edited_at,omitempty"`

	DoctorResponse *string    `db:"doctor_response" json:"doctor_response,omitempty"`
	RespondedAt    *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	CancelReason   *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	FeeCents       int64      `db:"fee_cents" json:"fee_cents"`

	Status    ConsultationStatus `db:"status" json:"status"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

type CreateConsultationRequest struct {
	Medicine        string          `json:"medicine" binding:"required,max=200"`
	Concern         ConcernCategory `json:"concern" binding:"required,oneof=dosage_question side_effects drug_interaction chronic_condition mental_health other"`
	Description     string          `json:"description" binding:"required,max=2000"`
	PreferredTime   *time.Time      `json:"preferred_time"`
	ShareHealthData bool            `json:"share_health_data"`
	DoctorID        *uuid.UUID      `json:"doctor_id"`
}

type AcceptConsultationRequest struct {
	MeetingLink   string     `json:"meeting_link" binding:"required,url"`
	ScheduledTime *time.Time `json:"scheduled_time"`
}

type RejectConsultationRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type PostponeConsultationRequest struct {
	ScheduledTime time.Time `json:"scheduled_time" binding:"required"`
	Reason        string    `json:"reason" binding:"required,max=1000"`
}

type CounterProposeRequest struct {
	PreferredTime time.Time `json:"preferred_time" binding:"required"`
	Medicine      *string   `json:"medicine" binding:"omitempty,max=200"`
	Description   *string   `json:"description" binding:"omitempty,max=2000"`
}

type CompleteConsultationRequest struct {
	Response string `json:"response" binding:"required,max=5000"`
}

type CancelConsultationRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type ConsultationFilters struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    ConsultationStatus
}
