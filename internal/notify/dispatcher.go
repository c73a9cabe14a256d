// Package notify persists user notifications and pushes them to connected
// websocket clients. Delivery is best-effort: failures are logged and
// counted, never returned.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
)

const dispatchTimeout = 5 * time.Second

// Pusher delivers an encoded message to a websocket room.
type Pusher interface {
	PublishRaw(room string, payload []byte)
}

// Dispatcher implements service.Notifier.
type Dispatcher struct {
	db     repository.DBTX
	repo   repository.NotificationRepository
	users  repository.UserRepository
	pusher Pusher
	fanout *RedisFanout
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. fanout may be nil, in which case
// pushes only reach clients connected to this instance.
func NewDispatcher(db repository.DBTX, repo repository.NotificationRepository, users repository.UserRepository, pusher Pusher, fanout *RedisFanout, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		repo:   repo,
		users:  users,
		pusher: pusher,
		fanout: fanout,
		logger: logger,
	}
}

// Notify persists n for n.UserID and pushes it.
func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	d.deliver(ctx, n)
}

// NotifyRole sends a copy of n to every active user holding role.
func (d *Dispatcher) NotifyRole(ctx context.Context, role domain.Role, n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	ids, err := d.users.ListIDsByRole(ctx, d.db, role)
	if err != nil {
		infra.NotificationsDroppedTotal.WithLabelValues("resolve").Inc()
		d.logger.Warn("notify role: list users failed", "role", role, "error", err)
		return
	}
	for _, id := range ids {
		msg := n
		msg.UserID = id
		d.deliver(ctx, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) {
	if err := d.repo.Insert(ctx, d.db, &n); err != nil {
		infra.NotificationsDroppedTotal.WithLabelValues("persist").Inc()
		d.logger.Warn("notification persist failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}

	payload, err := json.Marshal(infra.WSMessage{Event: "notification", Data: n})
	if err != nil {
		infra.NotificationsDroppedTotal.WithLabelValues("encode").Inc()
		return
	}

	room := infra.UserRoom(n.UserID.String())
	if d.fanout != nil {
		err := d.fanout.Publish(ctx, room, payload)
		if err == nil {
			return
		}
		d.logger.Warn("notification fan-out failed, pushing locally", "error", err)
	}
	d.pusher.PublishRaw(room, payload)
}

// List returns userID's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID uuid.UUID, page repository.Page) ([]domain.Notification, error) {
	out, err := d.repo.ListByUser(ctx, d.db, userID, page)
	if err != nil {
		return nil, domain.ErrInternal("list notifications", err)
	}
	return out, nil
}

// MarkRead flags one of userID's notifications as read.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := d.repo.MarkRead(ctx, d.db, userID, id)
	if err != nil {
		return domain.ErrInternal("mark notification read", err)
	}
	if !ok {
		return domain.ErrNotFound("notification", id.String())
	}
	return nil
}
