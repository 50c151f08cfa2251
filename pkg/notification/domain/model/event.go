package model

import "github.com/google/uuid"

type NotificationCreated struct {
	NotificationID uuid.UUID
	UserID         string
	OrderNumber    int64
}

func (e NotificationCreated) Type() string { return "NotificationCreated" }
