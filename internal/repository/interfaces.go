package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
)

// All repository interfaces in one file
type (
	// ConsultationRepository is the authoritative store for consultation
	// records. UpdateConditional is the only write path that may change
	// status; it applies mutate only when the stored status equals expected
	// at apply time and fails with Conflict otherwise. This conditional
	// update is the sole concurrency guard for the scheduling state machine.
	ConsultationRepository interface {
		Create(ctx context.Context, c *model.Consultation) error
		Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
		UpdateConditional(ctx context.Context, id uuid.UUID, expected model.ConsultationStatus, mutate func(*model.Consultation) error) (*model.Consultation, error)
		Delete(ctx context.Context, id uuid.UUID) error
		ListForPatient(ctx context.Context, patientID uuid.UUID, status model.ConsultationStatus) ([]*model.Consultation, error)
		ListForDoctor(ctx context.Context, doctorID uuid.UUID, status model.ConsultationStatus) ([]*model.Consultation, error)
		ListOpenForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Consultation, error)
		CountOpenForDoctors(ctx context.Context, doctorIDs []uuid.UUID) (map[uuid.UUID]int, error)
		HasCompletedOrAccepted(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		ListActive(ctx context.Context) ([]*model.Doctor, error)
		ListActiveBySpecializations(ctx context.Context, specs []model.Specialization) ([]*model.Doctor, error)
		SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error
		CreditEarnings(ctx context.Context, id uuid.UUID, amountCents int64) error
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		ListUnread(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error)
		MarkRead(ctx context.Context, ids []uuid.UUID) error
	}

	ComplaintRepository interface {
		Create(ctx context.Context, c *model.Complaint) error
		Get(ctx context.Context, id uuid.UUID) (*model.Complaint, error)
		Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, resolution string, action model.ComplaintAction) (*model.Complaint, error)
		ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Complaint, error)
		ListOpen(ctx context.Context) ([]*model.Complaint, error)
	}

	// HealthProfileReader is the read-only source for the point-in-time
	// snapshot captured at request time. The core never writes back to it.
	HealthProfileReader interface {
		Snapshot(ctx context.Context, patientID uuid.UUID) (*model.HealthSnapshot, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
