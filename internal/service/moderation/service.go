package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
	"github.com/careloop/consult-api/internal/service/consultation"
	"github.com/careloop/consult-api/internal/service/matching"
	"github.com/careloop/consult-api/internal/service/notification"
	apperrors "github.com/careloop/consult-api/pkg/errors"
	"github.com/careloop/consult-api/pkg/logger"
)

const (
	blockedCancelReason = "doctor account suspended"
	descriptionBounds   = "min=50,max=2000"
)

var validate = validator.New()

type Service struct {
	complaints    repository.ComplaintRepository
	consultations repository.ConsultationRepository
	doctors       repository.DoctorRepository
	scheduler     *consultation.Service
	matcher       *matching.Service
	notifier      notification.Service
	logger        *logger.Logger
}

func NewService(
	complaints repository.ComplaintRepository,
	consultations repository.ConsultationRepository,
	doctors repository.DoctorRepository,
	scheduler *consultation.Service,
	matcher *matching.Service,
	notifier notification.Service,
	logger *logger.Logger,
) *Service {
	return &Service{
		complaints:    complaints,
		consultations: consultations,
		doctors:       doctors,
		scheduler:     scheduler,
		matcher:       matcher,
		notifier:      notifier,
		logger:        logger,
	}
}

// FileComplaint records a complaint against a doctor the patient has
// actually consulted; complaints against uninvolved doctors are refused.
func (s *Service) FileComplaint(ctx context.Context, actor model.Actor, req *model.FileComplaintRequest) (*model.Complaint, error) {
	if actor.Role != model.RolePatient {
		return nil, apperrors.Unauthorized("only patients can file complaints")
	}
	if err := validate.Var(req.Description, descriptionBounds); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf(
			"description must be between %d and %d characters",
			model.ComplaintDescriptionMinLen, model.ComplaintDescriptionMaxLen), err)
	}

	if _, err := s.doctors.Get(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	involved, err := s.consultations.HasCompletedOrAccepted(ctx, actor.ID, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check consultation history: %w", err)
	}
	if !involved {
		return nil, apperrors.PreconditionFailed("complaints require a prior consultation with this doctor")
	}

	c := &model.Complaint{
		ID:          uuid.New(),
		PatientID:   actor.ID,
		DoctorID:    req.DoctorID,
		Category:    req.Category,
		Description: req.Description,
		Status:      model.ComplaintStatusUnderReview,
		CreatedAt:   time.Now(),
	}
	if err := s.complaints.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create complaint: %w", err)
	}
	return c, nil
}

// Resolve closes a complaint. Resolution is terminal; a resolved complaint
// can never be re-opened. Blocking the doctor clears their active flag
// before any cancellation starts, so matching never assigns mid-cascade.
func (s *Service) Resolve(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.ResolveComplaintRequest) (*model.Complaint, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only admins can resolve complaints")
	}

	resolved, err := s.complaints.Resolve(ctx, id, actor.ID, req.Resolution, req.ActionTaken)
	if err != nil {
		return nil, err
	}

	if req.ActionTaken == model.ComplaintActionDoctorBlocked {
		if err := s.blockDoctor(ctx, resolved.DoctorID); err != nil {
			return nil, err
		}
	}

	doctor, err := s.doctors.Get(ctx, resolved.DoctorID)
	doctorName := "the doctor"
	if err == nil {
		doctorName = doctor.Name
	}
	if err := s.notifier.Notify(ctx, resolved.PatientID, model.NotificationComplaintResolved, doctorName, ""); err != nil {
		s.logger.Error(err, "failed to notify complainant", "complaint_id", resolved.ID.String())
	}

	return resolved, nil
}

func (s *Service) blockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	if err := s.doctors.SetBlocked(ctx, doctorID, true); err != nil {
		return fmt.Errorf("failed to block doctor: %w", err)
	}
	s.matcher.InvalidateRoster()

	cancelled, err := s.scheduler.ForceCancelOpen(ctx, doctorID, blockedCancelReason)
	if err != nil {
		return fmt.Errorf("failed to cancel open consultations: %w", err)
	}
	s.logger.Info("doctor blocked, open consultations cancelled",
		"doctor_id", doctorID.String(), "cancelled", cancelled)
	return nil
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Complaint, error) {
	c, err := s.complaints.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != c.PatientID {
		return nil, apperrors.Unauthorized("actor cannot view this complaint")
	}
	return c, nil
}

func (s *Service) ListOpen(ctx context.Context, actor model.Actor) ([]*model.Complaint, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only admins can list open complaints")
	}
	return s.complaints.ListOpen(ctx)
}

func (s *Service) ListForDoctor(ctx context.Context, actor model.Actor, doctorID uuid.UUID) ([]*model.Complaint, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only admins can list complaints by doctor")
	}
	return s.complaints.ListForDoctor(ctx, doctorID)
}
