package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
)

var (
	ErrOrderIsEmpty      = errors.New("order must contain at least one item")
	ErrOrderNotDelivered = errors.New("order is not delivered")
)

const (
	paymentFolder       = "payments"
	maxUpdateAttempts   = 3
	defaultRetries      = 2
	defaultRetryBackoff = 100 * time.Millisecond
	defaultSweepBatch   = 100
)

type NewLineItem struct {
	ProductID    uuid.UUID
	ProductName  string
	Quantity     int
	Price        *decimal.Decimal
	ProductImage *domain.Image
}

type NewOrder struct {
	UserID          string
	Name            string
	Avatar          string
	Amount          *decimal.Decimal
	PhoneNumber     string
	DeliveryAddress string
	Items           []NewLineItem
	PaymentProof    *model.PaymentProof
	PaymentUpload   *domain.Upload
}

type OrderPatch struct {
	Status          *model.Status
	Name            *string
	Avatar          *string
	Amount          *decimal.Decimal
	PhoneNumber     *string
	DeliveryAddress *string
	PaymentProof    *model.PaymentProof
}

type UpdateResult struct {
	Order          *model.Order
	Reconciliation *model.ReconciliationReport
}

type OrderService interface {
	CreateOrder(ctx context.Context, input NewOrder) (*model.Order, error)
	UpdateOrder(ctx context.Context, number int64, patch OrderPatch, payment *domain.Upload) (*UpdateResult, error)
	GetOrders(ctx context.Context) ([]model.Order, error)
	GetOrder(ctx context.Context, number int64) (*model.Order, error)
	GetOrderForUser(ctx context.Context, number int64, userID string) (*model.Order, error)
	GetUserOrders(ctx context.Context, userID string) ([]model.Order, error)
	DeleteOrder(ctx context.Context, number int64) error
	DeleteAllOrders(ctx context.Context) (int64, error)

	RetryReconciliation(ctx context.Context, number int64) (*UpdateResult, error)
	// ReconcilePending retries delivered orders whose reconciliation is incomplete
	// and returns how many of them are now complete.
	ReconcilePending(ctx context.Context) (int, error)
}

type Option func(s *orderService)

// WithRetry sets how many times a transient line item failure is retried.
func WithRetry(retries uint64, initialInterval time.Duration) Option {
	return func(s *orderService) {
		s.retries = retries
		s.retryInterval = initialInterval
	}
}

func WithSweepBatch(size int) Option {
	return func(s *orderService) {
		if size > 0 {
			s.sweepBatch = size
		}
	}
}

func NewOrderService(
	repo model.OrderRepository,
	reconciler model.LineItemReconciler,
	catalog model.ProductCatalog,
	storage domain.ObjectStorage,
	dispatcher domain.EventDispatcher,
	options ...Option,
) OrderService {
	s := &orderService{
		repo:          repo,
		reconciler:    reconciler,
		catalog:       catalog,
		storage:       storage,
		dispatcher:    dispatcher,
		retries:       defaultRetries,
		retryInterval: defaultRetryBackoff,
		sweepBatch:    defaultSweepBatch,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

type orderService struct {
	repo          model.OrderRepository
	reconciler    model.LineItemReconciler
	catalog       model.ProductCatalog
	storage       domain.ObjectStorage
	dispatcher    domain.EventDispatcher
	retries       uint64
	retryInterval time.Duration
	sweepBatch    int
}

func (s *orderService) CreateOrder(ctx context.Context, input NewOrder) (*model.Order, error) {
	if err := validateNewOrder(input); err != nil {
		return nil, err
	}

	items, err := s.snapshotItems(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	proof := model.CashOnDelivery()
	if input.PaymentProof != nil {
		proof = *input.PaymentProof
	}
	if input.PaymentUpload != nil {
		image, err := s.storePaymentImage(ctx, *input.PaymentUpload)
		if err != nil {
			return nil, err
		}
		proof = model.ReceiptImage(image)
	}

	order, err := s.newOrder(ctx, input, items, proof)
	if err == nil {
		err = s.repo.Create(ctx, order)
	}
	if err != nil {
		if input.PaymentUpload != nil {
			s.releaseImage(ctx, proof.Image)
		}
		return nil, err
	}

	s.dispatchEvents(model.OrderCreated{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Amount:      order.Amount.String(),
	})
	return order, nil
}

func (s *orderService) newOrder(ctx context.Context, input NewOrder, items []model.LineItem, proof model.PaymentProof) (*model.Order, error) {
	orderID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}
	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		return nil, err
	}

	avatar := input.Avatar
	if avatar == "" {
		avatar = model.DefaultAvatar
	}

	now := time.Now().UTC()
	return &model.Order{
		ID:              orderID,
		Number:          number,
		UserID:          input.UserID,
		Name:            strings.TrimSpace(input.Name),
		Avatar:          avatar,
		Amount:          *input.Amount,
		Status:          model.Pending,
		PhoneNumber:     input.PhoneNumber,
		DeliveryAddress: input.DeliveryAddress,
		PaymentProof:    proof,
		Items:           items,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// snapshotItems copies product data into line items; an unknown product rejects the whole order.
func (s *orderService) snapshotItems(ctx context.Context, requested []NewLineItem) ([]model.LineItem, error) {
	verr := domain.NewValidationError()
	items := make([]model.LineItem, 0, len(requested))

	for i, req := range requested {
		snapshot, err := s.catalog.FindProduct(ctx, req.ProductID)
		if errors.Is(err, model.ErrProductNotFound) {
			verr.Addf(fmt.Sprintf("orderDetails[%d].productId", i), "product %s does not exist", req.ProductID)
			continue
		}
		if err != nil {
			return nil, err
		}

		item := model.LineItem{
			Line:           i + 1,
			ProductID:      req.ProductID,
			ProductName:    req.ProductName,
			Quantity:       req.Quantity,
			Price:          snapshot.Price,
			ProductImage:   req.ProductImage,
			ReconcileState: model.LineItemPending,
		}
		if item.ProductName == "" {
			item.ProductName = snapshot.Name
		}
		if req.Price != nil {
			item.Price = *req.Price
		}
		if item.ProductImage == nil && snapshot.Image != nil {
			image := *snapshot.Image
			item.ProductImage = &image
		}
		items = append(items, item)
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, number int64, patch OrderPatch, payment *domain.Upload) (*UpdateResult, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	if payment != nil {
		image, err := s.storePaymentImage(ctx, *payment)
		if err != nil {
			return nil, err
		}
		proof := model.ReceiptImage(image)
		patch.PaymentProof = &proof
	}

	order, previous, err := s.saveWithRetry(ctx, number, patch)
	if err != nil {
		if payment != nil {
			s.releaseImage(ctx, patch.PaymentProof.Image)
		}
		return nil, err
	}

	if patch.PaymentProof != nil && previous.PaymentProof.Image.Key != order.PaymentProof.Image.Key {
		s.releaseImage(ctx, previous.PaymentProof.Image)
	}

	if previous.Status != order.Status {
		log.WithFields(log.Fields{
			"order": order.Number,
			"from":  previous.Status,
			"to":    order.Status,
		}).Info("order status changed")
		s.dispatchEvents(model.OrderStatusChanged{
			OrderID:     order.ID,
			OrderNumber: order.Number,
			UserID:      order.UserID,
			OldStatus:   previous.Status,
			NewStatus:   order.Status,
		})
	}

	result := &UpdateResult{Order: order}
	if patch.Status != nil && *patch.Status == model.Delivered && order.NeedsReconciliation() {
		result.Reconciliation = s.reconcile(ctx, order)
	}
	return result, nil
}

// saveWithRetry re-reads and re-applies the patch when a concurrent update wins the version check.
func (s *orderService) saveWithRetry(ctx context.Context, number int64, patch OrderPatch) (*model.Order, model.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		order, err := s.repo.Find(ctx, number)
		if err != nil {
			return nil, model.Order{}, err
		}
		previous := *order

		applyPatch(order, patch)
		order.Version++
		order.UpdatedAt = time.Now().UTC()

		lastErr = s.repo.Update(ctx, order)
		if lastErr == nil {
			return order, previous, nil
		}
		if !errors.Is(lastErr, model.ErrOptimisticLock) {
			return nil, model.Order{}, lastErr
		}
	}
	return nil, model.Order{}, lastErr
}

func (s *orderService) GetOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.FindAll(ctx)
}

func (s *orderService) GetOrder(ctx context.Context, number int64) (*model.Order, error) {
	return s.repo.Find(ctx, number)
}

func (s *orderService) GetOrderForUser(ctx context.Context, number int64, userID string) (*model.Order, error) {
	return s.repo.FindForUser(ctx, number, userID)
}

func (s *orderService) GetUserOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.repo.FindByUser(ctx, userID)
}

// DeleteOrder removes the order only; stock already adjusted for it stays adjusted.
func (s *orderService) DeleteOrder(ctx context.Context, number int64) error {
	order, err := s.repo.Delete(ctx, number)
	if err != nil {
		return err
	}
	s.dispatchEvents(model.OrderDeleted{OrderID: order.ID, OrderNumber: order.Number})
	return nil
}

func (s *orderService) DeleteAllOrders(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.dispatchEvents(model.AllOrdersDeleted{Count: count})
	return count, nil
}

func (s *orderService) storePaymentImage(ctx context.Context, upload domain.Upload) (domain.Image, error) {
	image, err := s.storage.Put(ctx, upload.Body, upload.ContentType, paymentFolder+"/"+upload.Filename)
	if err != nil {
		return domain.Image{}, errors.Wrap(err, "store payment image")
	}
	return image, nil
}

func (s *orderService) releaseImage(ctx context.Context, image domain.Image) {
	if image.Key == "" {
		return
	}
	if err := s.storage.Delete(ctx, image.Key); err != nil {
		log.WithError(err).WithField("key", image.Key).Error("failed to release payment image")
	}
}

func (s *orderService) dispatchEvents(events ...domain.Event) {
	for _, event := range events {
		if err := s.dispatcher.Dispatch(event); err != nil {
			log.WithError(err).WithField("event", event.Type()).Error("failed to dispatch event")
		}
	}
}

func validateNewOrder(input NewOrder) error {
	verr := domain.NewValidationError()
	if input.UserID == "" {
		verr.Add("userId", "user is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		verr.Add("name", "name is required")
	}
	if input.Amount == nil {
		verr.Add("amount", "amount is required")
	} else if input.Amount.IsNegative() {
		verr.Add("amount", "amount cannot be negative")
	}
	if len(input.Items) == 0 {
		verr.Add("orderDetails", ErrOrderIsEmpty.Error())
	}
	for i, item := range input.Items {
		field := fmt.Sprintf("orderDetails[%d]", i)
		if item.ProductID == uuid.Nil {
			verr.Add(field+".productId", "product is required")
		}
		if item.Quantity < 1 {
			verr.Add(field+".quantity", "quantity must be at least 1")
		}
		if item.Price != nil && item.Price.IsNegative() {
			verr.Add(field+".price", "price cannot be negative")
		}
	}
	return verr.Err()
}

func validatePatch(patch OrderPatch) error {
	verr := domain.NewValidationError()
	if patch.Amount != nil && patch.Amount.IsNegative() {
		verr.Add("amount", "amount cannot be negative")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		verr.Add("name", "name cannot be empty")
	}
	return verr.Err()
}

func applyPatch(order *model.Order, patch OrderPatch) {
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.Name != nil {
		order.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Avatar != nil {
		order.Avatar = *patch.Avatar
	}
	if patch.Amount != nil {
		order.Amount = *patch.Amount
	}
	if patch.PhoneNumber != nil {
		order.PhoneNumber = *patch.PhoneNumber
	}
	if patch.DeliveryAddress != nil {
		order.DeliveryAddress = *patch.DeliveryAddress
	}
	if patch.PaymentProof != nil {
		order.PaymentProof = *patch.PaymentProof
	}
}
