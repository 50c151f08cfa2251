package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID          uuid.UUID `json:"_id"`
	UserID      string    `json:"userId"`
	OrderNumber int64     `json:"orderId"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NotificationRepository interface {
	NextID() (uuid.UUID, error)
	Create(ctx context.Context, notification *Notification) error
	// FindByUser returns the newest notifications of a user first.
	FindByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
}
