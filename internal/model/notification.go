package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationConsultationRequested   NotificationType = "consultation_requested"
	NotificationConsultationAccepted    NotificationType = "consultation_accepted"
	NotificationConsultationRejected    NotificationType = "consultation_rejected"
	NotificationConsultationRescheduled NotificationType = "consultation_rescheduled"
	NotificationRescheduleConfirmed     NotificationType = "reschedule_confirmed"
	NotificationTimeChangeRequested     NotificationType = "time_change_requested"
	NotificationConsultationCompleted   NotificationType = "consultation_completed"
	NotificationConsultationCancelled   NotificationType = "consultation_cancelled"
	NotificationComplaintResolved       NotificationType = "complaint_resolved"
)

// Notification is created only as a side effect of a state transition or a
// moderation resolution. Only IsRead is ever mutated afterwards.
type Notification struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	UserID    uuid.UUID        `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Link      *string          `db:"link" json:"link,omitempty"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

type MarkReadRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}
