package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/repository"
)

type notificationRepository struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*model.Notification
}

func NewNotificationRepository() repository.NotificationRepository {
	return &notificationRepository{notifications: make(map[uuid.UUID]*model.Notification)}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *n
	r.notifications[n.ID] = &copy
	return nil
}

func (r *notificationRepository) ListUnread(ctx context.Context, userID uuid.UUID) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Notification
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			copy := *n
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead is idempotent; ids that are absent or already read are skipped.
func (r *notificationRepository) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if n, ok := r.notifications[id]; ok {
			n.IsRead = true
		}
	}
	return nil
}
