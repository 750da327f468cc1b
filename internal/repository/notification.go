package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/entity"
)

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, n *entity.Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, id int64) error
}

type PgNotificationRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewPgNotificationRepository(db *DB, logger *slog.Logger) *PgNotificationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgNotificationRepository{db: db, logger: logger}
}

func (r *PgNotificationRepository) Insert(ctx context.Context, n *entity.Notification) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, message, request_id)
		VALUES ($1, $2, $3)
		RETURNING id, is_read, created_at`,
		n.UserID, n.Message, n.RequestID,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return common.WrapError(common.ErrDatabase, "insert notification", err)
	}
	return nil
}

func (r *PgNotificationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*entity.Notification, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, message, request_id, is_read, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, "list notifications", err)
	}
	defer rows.Close()

	var out []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.RequestID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, common.WrapError(common.ErrDatabase, "scan notification", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(common.ErrDatabase, "list notifications", err)
	}
	return out, nil
}

func (r *PgNotificationRepository) MarkRead(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return common.WrapError(common.ErrDatabase, "mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError(common.ErrNotFound, "notification not found")
	}
	return nil
}
