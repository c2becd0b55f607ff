package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
	"github.com/careloop/consult-api/internal/service/matching"
	"github.com/careloop/consult-api/internal/service/notification"
	apperrors "github.com/careloop/consult-api/pkg/errors"
	"github.com/careloop/consult-api/pkg/logger"
	"github.com/careloop/consult-api/pkg/metrics"
)

// Service is the scheduling state machine. Every status change goes through
// the repository's conditional update keyed on the status the caller
// observed; losing that race reports Conflict and the caller re-reads and
// retries. A failed precondition mutates nothing.
type Service struct {
	repo     repository.ConsultationRepository
	doctors  repository.DoctorRepository
	patients repository.PatientRepository
	health   repository.HealthProfileReader
	matcher  *matching.Service
	notifier notification.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(
	repo repository.ConsultationRepository,
	doctors repository.DoctorRepository,
	patients repository.PatientRepository,
	health repository.HealthProfileReader,
	matcher *matching.Service,
	notifier notification.Service,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		repo:     repo,
		doctors:  doctors,
		patients: patients,
		health:   health,
		matcher:  matcher,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Request creates a new consultation in pending state, assigning a doctor
// either explicitly or by specialization match, and snapshotting the
// patient's health data when the share flag is set.
func (s *Service) Request(ctx context.Context, actor model.Actor, req *model.CreateConsultationRequest) (*model.Consultation, error) {
	if actor.Role != model.RolePatient {
		return nil, apperrors.Unauthorized("only patients can request consultations")
	}

	patient, err := s.patients.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	doctor, err := s.matcher.Assign(ctx, req.Concern, req.DoctorID)
	if err != nil {
		s.metrics.TransitionsTotal.WithLabelValues("request", "failed").Inc()
		return nil, err
	}

	c := &model.Consultation{
		ID:              uuid.New(),
		PatientID:       patient.ID,
		PatientName:     patient.Name,
		DoctorID:        doctor.ID,
		DoctorName:      doctor.Name,
		Medicine:        req.Medicine,
		Concern:         req.Concern,
		Description:     req.Description,
		PreferredTime:   req.PreferredTime,
		ShareHealthData: req.ShareHealthData,
		FeeCents:        doctor.FeeCents,
		Status:          model.ConsultationStatusPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if req.ShareHealthData {
		snapshot, err := s.health.Snapshot(ctx, patient.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot health data: %w", err)
		}
		c.HealthSnapshot = snapshot
	}

	if err := s.repo.Create(ctx, c); err != nil {
		s.metrics.TransitionsTotal.WithLabelValues("request", "failed").Inc()
		return nil, fmt.Errorf("failed to create consultation: %w", err)
	}
	s.metrics.TransitionsTotal.WithLabelValues("request", "success").Inc()

	s.notify(ctx, doctor.ID, model.NotificationConsultationRequested, patient.Name, c.ID)
	return c, nil
}

// StartReview marks the request as being looked at. Internal to the doctor's
// workflow; nobody is notified.
func (s *Service) StartReview(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.authorizeDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusPending && c.Status != model.ConsultationStatusInReview {
		return nil, apperrors.PreconditionFailed("consultation is not awaiting review")
	}

	return s.transition(ctx, "start_review", c.ID, c.Status, func(c *model.Consultation) error {
		c.Status = model.ConsultationStatusInReview
		return nil
	})
}

// Accept schedules the consultation. From pending/in_review it needs both a
// meeting link and a time; from a confirmed reschedule it needs a fresh
// link, never reusing one from an earlier cycle.
func (s *Service) Accept(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AcceptConsultationRequest) (*model.Consultation, error) {
	c, err := s.authorizeDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.MeetingLink == "" {
		return nil, apperrors.PreconditionFailed("meeting link is required")
	}

	switch {
	case c.Status == model.ConsultationStatusPending || c.Status == model.ConsultationStatusInReview:
		if req.ScheduledTime == nil {
			return nil, apperrors.PreconditionFailed("scheduled time is required")
		}
		updated, err := s.transition(ctx, "accept", c.ID, c.Status, func(c *model.Consultation) error {
			c.Status = model.ConsultationStatusAccepted
			c.ScheduledTime = req.ScheduledTime
			c.MeetingLink = &req.MeetingLink
			clearRescheduleFlags(c)
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.notify(ctx, updated.PatientID, model.NotificationConsultationAccepted, updated.DoctorName, updated.ID)
		return updated, nil

	case c.Status == model.ConsultationStatusRescheduled && c.AwaitingDoctorLink:
		updated, err := s.transition(ctx, "accept", c.ID, c.Status, func(c *model.Consultation) error {
			if !c.AwaitingDoctorLink {
				return apperrors.PreconditionFailed("consultation is not awaiting a meeting link")
			}
			c.Status = model.ConsultationStatusAccepted
			c.MeetingLink = &req.MeetingLink
			c.AwaitingDoctorLink = false
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.notify(ctx, updated.PatientID, model.NotificationConsultationAccepted, updated.DoctorName, updated.ID)
		return updated, nil

	default:
		return nil, apperrors.PreconditionFailed("consultation cannot be accepted from its current state")
	}
}

// Reject declines the request. Terminal.
func (s *Service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Consultation, error) {
	c, err := s.authorizeDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusPending && c.Status != model.ConsultationStatusInReview {
		return nil, apperrors.PreconditionFailed("only pending consultations can be rejected")
	}
	if reason == "" {
		return nil, apperrors.PreconditionFailed("rejection reason is required")
	}

	now := time.Now()
	updated, err := s.transition(ctx, "reject", c.ID, c.Status, func(c *model.Consultation) error {
		c.Status = model.ConsultationStatusRejected
		c.DoctorResponse = &reason
		c.RespondedAt = &now
		c.ScheduledTime = nil
		c.MeetingLink = nil
		clearRescheduleFlags(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated.PatientID, model.NotificationConsultationRejected, updated.DoctorName, updated.ID)
	return updated, nil
}

// Postpone proposes a different time and hands the decision to the patient.
// The prior preferred or scheduled time is kept as previous_scheduled_time;
// only one prior value is retained across cycles.
func (s *Service) Postpone(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.PostponeConsultationRequest) (*model.Consultation, error) {
	c, err := s.authorizeDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusPending && c.Status != model.ConsultationStatusInReview {
		return nil, apperrors.PreconditionFailed("only pending consultations can be postponed")
	}

	now := time.Now()
	by := model.RescheduledByDoctor
	updated, err := s.transition(ctx, "postpone", c.ID, c.Status, func(c *model.Consultation) error {
		if prior := c.ScheduledTime; prior != nil {
			c.PreviousScheduledTime = prior
		} else {
			c.PreviousScheduledTime = c.PreferredTime
		}
		c.Status = model.ConsultationStatusRescheduled
		c.ScheduledTime = &req.ScheduledTime
		c.MeetingLink = nil
		c.RescheduleReason = &req.Reason
		c.RescheduledBy = &by
		c.RescheduledAt = &now
		c.RequiresConfirmation = true
		c.AwaitingDoctorLink = false
		c.PatientRequestedChanges = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated.PatientID, model.NotificationConsultationRescheduled, updated.DoctorName, updated.ID)
	return updated, nil
}

// ConfirmReschedule accepts the doctor's proposed time. The record stays in
// rescheduled state until the doctor issues a fresh meeting link.
func (s *Service) ConfirmReschedule(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.authorizePatient(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusRescheduled || !c.RequiresConfirmation {
		return nil, apperrors.PreconditionFailed("consultation is not awaiting reschedule confirmation")
	}

	updated, err := s.transition(ctx, "confirm", c.ID, c.Status, func(c *model.Consultation) error {
		if !c.RequiresConfirmation {
			return apperrors.PreconditionFailed("consultation is not awaiting reschedule confirmation")
		}
		c.RequiresConfirmation = false
		c.AwaitingDoctorLink = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated.DoctorID, model.NotificationRescheduleConfirmed, updated.PatientName, updated.ID)
	return updated, nil
}

// CounterPropose rejects the doctor's proposed time with an alternative,
// returning the record to pending. The doctor retains full re-decision
// authority; a patient can never unilaterally finalize a time.
func (s *Service) CounterPropose(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.CounterProposeRequest) (*model.Consultation, error) {
	c, err := s.authorizePatient(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusRescheduled || !c.RequiresConfirmation {
		return nil, apperrors.PreconditionFailed("consultation is not awaiting reschedule confirmation")
	}

	now := time.Now()
	updated, err := s.transition(ctx, "counter_propose", c.ID, c.Status, func(c *model.Consultation) error {
		if !c.RequiresConfirmation {
			return apperrors.PreconditionFailed("consultation is not awaiting reschedule confirmation")
		}
		c.PreviousScheduledTime = c.ScheduledTime
		c.Status = model.ConsultationStatusPending
		c.ScheduledTime = nil
		c.MeetingLink = nil
		c.PreferredTime = &req.PreferredTime
		c.PatientRequestedChanges = true
		c.EditCount++
		c.LastEditedAt = &now
		c.RequiresConfirmation = false
		if req.Medicine != nil {
			c.Medicine = *req.Medicine
		}
		if req.Description != nil {
			c.Description = *req.Description
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated.DoctorID, model.NotificationTimeChangeRequested, updated.PatientName, updated.ID)
	return updated, nil
}

// Complete records the doctor's response and credits the consultation fee.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID, response string) (*model.Consultation, error) {
	c, err := s.authorizeDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ConsultationStatusInReview && c.Status != model.ConsultationStatusAccepted {
		return nil, apperrors.PreconditionFailed("only in-review or accepted consultations can be completed")
	}
	if response == "" {
		return nil, apperrors.PreconditionFailed("response text is required")
	}

	now := time.Now()
	updated, err := s.transition(ctx, "complete", c.ID, c.Status, func(c *model.Consultation) error {
		c.Status = model.ConsultationStatusCompleted
		c.DoctorResponse = &response
		c.RespondedAt = &now
		c.ScheduledTime = nil
		c.MeetingLink = nil
		clearRescheduleFlags(c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.doctors.CreditEarnings(ctx, updated.DoctorID, updated.FeeCents); err != nil {
		s.logger.Error(err, "failed to credit consultation fee",
			"consultation_id", updated.ID.String(), "doctor_id", updated.DoctorID.String())
	}

	s.notify(ctx, updated.PatientID, model.NotificationConsultationCompleted, updated.DoctorName, updated.ID)
	return updated, nil
}

// Cancel ends a non-terminal consultation. Doctors cancel their own records;
// admins cancel any.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Consultation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != c.DoctorID {
		return nil, apperrors.Unauthorized("actor cannot cancel this consultation")
	}
	if c.Status.IsTerminal() {
		return nil, apperrors.PreconditionFailed("consultation is already in a terminal state")
	}
	if reason == "" {
		return nil, apperrors.PreconditionFailed("cancellation reason is required")
	}

	updated, err := s.cancelFrom(ctx, c.ID, c.Status, reason)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, updated.PatientID, model.NotificationConsultationCancelled, updated.DoctorName, updated.ID)
	return updated, nil
}

// ForceCancelOpen cancels every open consultation for a doctor, one
// conditional update per record. Records that move concurrently are skipped;
// the record already changed, which is the correct outcome. Returns the
// number cancelled.
func (s *Service) ForceCancelOpen(ctx context.Context, doctorID uuid.UUID, reason string) (int, error) {
	open, err := s.repo.ListOpenForDoctor(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("failed to list open consultations: %w", err)
	}

	cancelled := 0
	for _, c := range open {
		updated, err := s.cancelFrom(ctx, c.ID, c.Status, reason)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrConflict) || apperrors.Is(err, apperrors.ErrNotFound) {
				s.logger.Warn("skipping consultation during cascade",
					"consultation_id", c.ID.String(), "reason", err.Error())
				continue
			}
			return cancelled, err
		}
		cancelled++
		s.metrics.CascadeCancellations.Inc()
		s.notify(ctx, updated.PatientID, model.NotificationConsultationCancelled, updated.DoctorName, updated.ID)
	}
	return cancelled, nil
}

func (s *Service) cancelFrom(ctx context.Context, id uuid.UUID, expected model.ConsultationStatus, reason string) (*model.Consultation, error) {
	return s.transition(ctx, "cancel", id, expected, func(c *model.Consultation) error {
		c.Status = model.ConsultationStatusCancelled
		c.CancelReason = &reason
		c.ScheduledTime = nil
		c.MeetingLink = nil
		clearRescheduleFlags(c)
		return nil
	})
}

// Delete hard-removes a record from a terminal outcome. Deleting an absent
// id reports NotFound rather than escalating; the call is idempotent.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && actor.ID != c.PatientID && actor.ID != c.DoctorID {
		return apperrors.Unauthorized("actor cannot delete this consultation")
	}
	if c.Status != model.ConsultationStatusCompleted && c.Status != model.ConsultationStatusRejected {
		return apperrors.PreconditionFailed("only completed or rejected consultations can be deleted")
	}
	return s.repo.Delete(ctx, id)
}

// Get returns a consultation to its patient, its doctor, or an admin.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != c.PatientID && actor.ID != c.DoctorID {
		return nil, apperrors.Unauthorized("actor cannot view this consultation")
	}
	return c, nil
}

// List returns the actor's own consultations, optionally filtered by status.
func (s *Service) List(ctx context.Context, actor model.Actor, status model.ConsultationStatus) ([]*model.Consultation, error) {
	switch actor.Role {
	case model.RolePatient:
		return s.repo.ListForPatient(ctx, actor.ID, status)
	case model.RoleDoctor:
		return s.repo.ListForDoctor(ctx, actor.ID, status)
	default:
		return nil, apperrors.Unauthorized("admins list consultations per user")
	}
}

// transition wraps the conditional update with transition metrics.
func (s *Service) transition(ctx context.Context, action string, id uuid.UUID, expected model.ConsultationStatus, mutate func(*model.Consultation) error) (*model.Consultation, error) {
	updated, err := s.repo.UpdateConditional(ctx, id, expected, mutate)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrConflict) {
			s.metrics.ConflictsTotal.Inc()
		}
		s.metrics.TransitionsTotal.WithLabelValues(action, "failed").Inc()
		return nil, err
	}
	s.metrics.TransitionsTotal.WithLabelValues(action, "success").Inc()
	return updated, nil
}

// notify creates the counterpart's notification. The record write already
// committed; a failed notification is logged, not rolled back.
func (s *Service) notify(ctx context.Context, userID uuid.UUID, typ model.NotificationType, counterpartName string, consultationID uuid.UUID) {
	link := fmt.Sprintf("/consultations/%s", consultationID)
	if err := s.notifier.Notify(ctx, userID, typ, counterpartName, link); err != nil {
		s.logger.Error(err, "failed to create notification",
			"consultation_id", consultationID.String(), "type", string(typ))
	}
}

// authorizeDoctor loads the record and verifies the actor is its doctor (or
// an admin) and that the doctor is not blocked. A blocked doctor's records
// are frozen until the cascade cancels them.
func (s *Service) authorizeDoctor(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != c.DoctorID {
		return nil, apperrors.Unauthorized("actor is not the assigned doctor")
	}
	if err := s.ensureDoctorNotBlocked(ctx, c.DoctorID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) authorizePatient(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != c.PatientID {
		return nil, apperrors.Unauthorized("actor is not the requesting patient")
	}
	if err := s.ensureDoctorNotBlocked(ctx, c.DoctorID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ensureDoctorNotBlocked(ctx context.Context, doctorID uuid.UUID) error {
	doctor, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		return err
	}
	if doctor.Blocked {
		return apperrors.PreconditionFailed("doctor account is suspended")
	}
	return nil
}

func clearRescheduleFlags(c *model.Consultation) {
	c.RequiresConfirmation = false
	c.AwaitingDoctorLink = false
	c.RescheduleReason = nil
	c.RescheduledBy = nil
	c.RescheduledAt = nil
}
