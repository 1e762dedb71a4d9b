package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, user_id, notification_type, title, message, is_read, related_object_id, related_object_type, created_at, read_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, n *Notification) error
	ListByUser(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, ext sqlx.ExtContext, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID) error
}

type notifyRepository struct{}

func NewRepository() Repository {
	return &notifyRepository{}
}

func (r *notifyRepository) Create(ctx context.Context, ext sqlx.ExtContext, n *Notification) error {
	const query = `INSERT INTO notifications (id, user_id, notification_type, title, message, is_read, related_object_id, related_object_type, created_at, read_at)
		VALUES (:id, :user_id, :notification_type, :title, :message, :is_read, :related_object_id, :related_object_type, :created_at, :read_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, n)
	return err
}

func (r *notifyRepository) ListByUser(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	filter := ""
	if unreadOnly {
		filter = ` AND NOT is_read`
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1%s ORDER BY created_at DESC LIMIT %d`, columns, filter, limit)

	var rows []*Notification
	if err := sqlx.SelectContext(ctx, ext, &rows, query, userID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *notifyRepository) MarkRead(ctx context.Context, ext sqlx.ExtContext, id, userID uuid.UUID) error {
	_, err := ext.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE id = $2 AND user_id = $3`,
		time.Now(), id, userID)
	return err
}

func (r *notifyRepository) MarkAllRead(ctx context.Context, ext sqlx.ExtContext, userID uuid.UUID) error {
	_, err := ext.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE user_id = $2 AND NOT is_read`,
		time.Now(), userID)
	return err
}
