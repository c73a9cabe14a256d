package repository

import (
	"context"
	"fmt"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/google/uuid"
)

type notificationRepo struct{}

// NewNotificationRepository returns a pgx-backed NotificationRepository.
func NewNotificationRepository() NotificationRepository {
	return &notificationRepo{}
}

func (r *notificationRepo) Insert(ctx context.Context, db DBTX, n *domain.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, message, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Message, n.Data).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, page Page) ([]domain.Notification, error) {
	page = page.normalize()
	rows, err := db.Query(ctx, `
		SELECT id, user_id, kind, title, message, data, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationRepo) MarkRead(ctx context.Context, db DBTX, userID, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
