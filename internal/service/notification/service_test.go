package notification_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
	"github.com/careloop/consult-api/internal/repository/memory"
	"github.com/careloop/consult-api/internal/service/notification"
	"github.com/careloop/consult-api/pkg/logger"
	"github.com/careloop/consult-api/pkg/metrics"
)

func newService(t *testing.T) (notification.Service, repository.OutboxRepository) {
	t.Helper()
	outbox := memory.NewOutboxRepository()
	log := logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
	svc := notification.NewService(memory.NewNotificationRepository(), outbox, log, metrics.New("test"))
	return svc, outbox
}

func TestNotifyCreatesUnreadRecordAndOutboxEvent(t *testing.T) {
	svc, outbox := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	err := svc.Notify(ctx, userID, model.NotificationConsultationAccepted, "Dr. Chen", "/consultations/abc")
	require.NoError(t, err)

	list, err := svc.ListUnread(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationConsultationAccepted, list[0].Type)
	assert.Equal(t, "Dr. Chen accepted your consultation request", list[0].Message)
	assert.False(t, list[0].IsRead)
	require.NotNil(t, list[0].Link)
	assert.Equal(t, "/consultations/abc", *list[0].Link)

	events, err := outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(model.NotificationConsultationAccepted), events[0].EventType)
}

func TestNotifyUnknownType(t *testing.T) {
	svc, _ := newService(t)

	err := svc.Notify(context.Background(), uuid.New(), model.NotificationType("bogus"), "x", "")
	assert.Error(t, err)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, svc.Notify(ctx, userID, model.NotificationConsultationRequested, "Alice Wong", ""))

	list, err := svc.ListUnread(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ids := []uuid.UUID{list[0].ID}
	require.NoError(t, svc.MarkRead(ctx, ids))
	require.NoError(t, svc.MarkRead(ctx, ids))

	list, err = svc.ListUnread(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
