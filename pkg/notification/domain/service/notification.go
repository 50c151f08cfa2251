package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"storefront/pkg/common/domain"
	"storefront/pkg/notification/domain/model"
	ordermodel "storefront/pkg/order/domain/model"
)

const (
	DefaultListLimit    = 50
	defaultStoreTimeout = 5 * time.Second
)

// NotificationService keeps in-app notifications about a user's orders.
// It is also an event dispatcher: order events dispatched to it become notifications.
type NotificationService interface {
	domain.EventDispatcher
	NotifyOrderCreated(ctx context.Context, userID string, orderNumber int64) error
	NotifyStatusChanged(ctx context.Context, userID string, orderNumber int64, status ordermodel.Status) error
	ListForUser(ctx context.Context, userID string) ([]model.Notification, error)
}

type Option func(s *notificationService)

// WithStoreTimeout bounds how long storing a notification for a dispatched event may take.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(s *notificationService) {
		if timeout > 0 {
			s.storeTimeout = timeout
		}
	}
}

func NewNotificationService(repo model.NotificationRepository, dispatcher domain.EventDispatcher, options ...Option) NotificationService {
	s := &notificationService{repo: repo, dispatcher: dispatcher, storeTimeout: defaultStoreTimeout}
	for _, option := range options {
		option(s)
	}
	return s
}

type notificationService struct {
	repo         model.NotificationRepository
	dispatcher   domain.EventDispatcher
	storeTimeout time.Duration
}

func (s *notificationService) Dispatch(event domain.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()

	switch e := event.(type) {
	case ordermodel.OrderCreated:
		return s.NotifyOrderCreated(ctx, e.UserID, e.OrderNumber)
	case ordermodel.OrderStatusChanged:
		return s.NotifyStatusChanged(ctx, e.UserID, e.OrderNumber, e.NewStatus)
	}
	return nil
}

func (s *notificationService) NotifyOrderCreated(ctx context.Context, userID string, orderNumber int64) error {
	message := fmt.Sprintf("Your order #%d has been placed.", orderNumber)
	return s.store(ctx, userID, orderNumber, message)
}

func (s *notificationService) NotifyStatusChanged(ctx context.Context, userID string, orderNumber int64, status ordermodel.Status) error {
	message := fmt.Sprintf("Your order #%d is now %s.", orderNumber, status)
	return s.store(ctx, userID, orderNumber, message)
}

func (s *notificationService) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.repo.FindByUser(ctx, userID, DefaultListLimit)
}

func (s *notificationService) store(ctx context.Context, userID string, orderNumber int64, message string) error {
	if userID == "" {
		return nil
	}

	notifID, err := s.repo.NextID()
	if err != nil {
		return err
	}
	notification := &model.Notification{
		ID:          notifID,
		UserID:      userID,
		OrderNumber: orderNumber,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return err
	}

	if err := s.dispatcher.Dispatch(model.NotificationCreated{
		NotificationID: notifID, UserID: userID, OrderNumber: orderNumber,
	}); err != nil {
		log.WithError(err).Error("failed to dispatch notification event")
	}
	return nil
}
