package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
	"github.com/careloop/consult-api/pkg/logger"
	"github.com/careloop/consult-api/pkg/metrics"
)

// templates holds the fixed title/message pair per notification type. The
// message verb slots in the counterpart's display name.
var templates = map[model.NotificationType]struct {
	title   string
	message string
}{
	model.NotificationConsultationRequested:   {"New consultation request", "%s requested a consultation"},
	model.NotificationConsultationAccepted:    {"Consultation accepted", "%s accepted your consultation request"},
	model.NotificationConsultationRejected:    {"Consultation declined", "%s declined your consultation request"},
	model.NotificationConsultationRescheduled: {"Consultation rescheduled", "%s proposed a new consultation time"},
	model.NotificationRescheduleConfirmed:     {"Reschedule confirmed", "%s confirmed the proposed time"},
	model.NotificationTimeChangeRequested:     {"Different time requested", "%s requested a different consultation time"},
	model.NotificationConsultationCompleted:   {"Consultation completed", "%s responded to your consultation"},
	model.NotificationConsultationCancelled:   {"Consultation cancelled", "Your consultation with %s was cancelled"},
	model.NotificationComplaintResolved:       {"Complaint resolved", "Your complaint about %s has been reviewed"},
}

type Service interface {
	Notify(ctx context.Context, userID uuid.UUID, typ model.NotificationType, counterpartName string, link string) error
	ListUnread(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error)
	MarkRead(ctx context.Context, ids []uuid.UUID) error
}

type service struct {
	repo    repository.NotificationRepository
	outbox  repository.OutboxRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(repo repository.NotificationRepository, outbox repository.OutboxRepository, logger *logger.Logger, metrics *metrics.Metrics) Service {
	return &service{
		repo:    repo,
		outbox:  outbox,
		logger:  logger,
		metrics: metrics,
	}
}

// Notify creates one unread notification record. The record write is
// synchronous with the triggering transition; push delivery goes through the
// outbox and is best effort.
func (s *service) Notify(ctx context.Context, userID uuid.UUID, typ model.NotificationType, counterpartName string, link string) error {
	tpl, ok := templates[typ]
	if !ok {
		return fmt.Errorf("unknown notification type: %s", typ)
	}

	n := &model.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Title:     tpl.title,
		Message:   fmt.Sprintf(tpl.message, counterpartName),
		CreatedAt: time.Now(),
	}
	if link != "" {
		n.Link = &link
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	s.metrics.NotificationsCreated.WithLabelValues(string(typ)).Inc()

	s.enqueueDelivery(ctx, n)
	return nil
}

func (s *service) enqueueDelivery(ctx context.Context, n *model.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		s.logger.Error(err, "failed to marshal notification for outbox", "notification_id", n.ID.String())
		return
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: string(n.Type),
		Payload:   payload,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		// The stored notification row is the contract; a failed outbox write
		// only delays push delivery until the client polls.
		s.logger.Error(err, "failed to enqueue notification delivery", "notification_id", n.ID.String())
	}
}

func (s *service) ListUnread(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error) {
	notifications, err := s.repo.ListUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	return notifications, nil
}

func (s *service) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, ids); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
