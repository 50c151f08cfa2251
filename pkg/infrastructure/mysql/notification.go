package mysql

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"storefront/pkg/notification/domain/model"
)

func NewNotificationRepository(db *sqlx.DB) model.NotificationRepository {
	return &notificationRepository{db: db}
}

type notificationRepository struct {
	db *sqlx.DB
}

func (r *notificationRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (id, user_id, order_number, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		notification.ID, notification.UserID, notification.OrderNumber, notification.Message, notification.CreatedAt)
	return errors.Wrap(err, "failed to insert notification")
}

func (r *notificationRepository) FindByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	var rows []struct {
		ID          uuid.UUID `db:"id"`
		UserID      string    `db:"user_id"`
		OrderNumber int64     `db:"order_number"`
		Message     string    `db:"message"`
		CreatedAt   time.Time `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, user_id, order_number, message, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to select notifications")
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, model.Notification(row))
	}
	return notifications, nil
}
