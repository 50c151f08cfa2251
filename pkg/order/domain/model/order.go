package model

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/pkg/common/domain"
)

var (
	ErrOrderNotFound             = errors.New("order not found")
	ErrOptimisticLock            = errors.New("order has been modified by another transaction")
	ErrProductNotFound           = errors.New("product not found")
	ErrLineItemAlreadyReconciled = errors.New("line item already reconciled")
)

const DefaultAvatar = "/uploads/default-avatar.png"

type LineItemState string

const (
	LineItemPending         LineItemState = "pending"
	LineItemApplied         LineItemState = "applied"
	LineItemProductNotFound LineItemState = "product_not_found"
)

// Done reports whether the item no longer needs reconciliation.
func (s LineItemState) Done() bool {
	return s == LineItemApplied || s == LineItemProductNotFound
}

// LineItem is a snapshot of the product at ordering time.
type LineItem struct {
	Line           int             `json:"line"`
	ProductID      uuid.UUID       `json:"productId"`
	ProductName    string          `json:"product"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	ProductImage   *domain.Image   `json:"productImage,omitempty"`
	ReconcileState LineItemState   `json:"reconcileState"`
	// Shortfall is how many units were sold beyond available stock at delivery.
	Shortfall int `json:"shortfall,omitempty"`
}

func (i LineItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              uuid.UUID       `json:"_id"`
	Number          int64           `json:"id"`
	UserID          string          `json:"userId"`
	Name            string          `json:"name"`
	Avatar          string          `json:"avatar"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status          `json:"status"`
	PhoneNumber     string          `json:"phoneNumber"`
	DeliveryAddress string          `json:"deliveryAddress"`
	PaymentProof    PaymentProof    `json:"paymentImage"`
	Items           []LineItem      `json:"orderDetails"`
	StockReconciled bool            `json:"stockReconciled"`
	Version         int             `json:"-"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// NeedsReconciliation is true for delivered orders that still have unprocessed line items.
func (o *Order) NeedsReconciliation() bool {
	return o.Status == Delivered && !o.StockReconciled
}

func (o *Order) AllItemsDone() bool {
	for _, item := range o.Items {
		if !item.ReconcileState.Done() {
			return false
		}
	}
	return true
}

// ProductSnapshot is the catalog data copied into a line item.
type ProductSnapshot struct {
	ID    uuid.UUID
	Name  string
	Price decimal.Decimal
	Image *domain.Image
}

type ProductCatalog interface {
	FindProduct(ctx context.Context, id uuid.UUID) (ProductSnapshot, error)
}

// OrderRepository persists orders. Update writes the order's own fields guarded by
// Version; line items are immutable after Create except for their reconciliation
// state, which is owned by LineItemReconciler.
type OrderRepository interface {
	NextID() (uuid.UUID, error)
	// NextNumber atomically allocates the next sequential order number.
	NextNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
	Find(ctx context.Context, number int64) (*Order, error)
	FindForUser(ctx context.Context, number int64, userID string) (*Order, error)
	FindAll(ctx context.Context) ([]Order, error)
	FindByUser(ctx context.Context, userID string) ([]Order, error)
	FindUnreconciled(ctx context.Context, limit int) ([]Order, error)
	MarkReconciled(ctx context.Context, orderID uuid.UUID) error
	Delete(ctx context.Context, number int64) (*Order, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// StockMovement is what reconciling one line item did to the product.
type StockMovement struct {
	ProductID     uuid.UUID
	Quantity      int
	StockQuantity int
	Sold          int
	Shortfall     int
}

// LineItemReconciler applies one line item to its product exactly once.
//
// Implementations flip the item from pending to applied and adjust the product
// (sold += quantity, stock -= quantity clamped at zero) as one atomic unit.
// They return ErrLineItemAlreadyReconciled if the item was not pending and
// ErrProductNotFound (after recording LineItemProductNotFound) if the product is gone.
// Any other error leaves the item pending.
type LineItemReconciler interface {
	ReconcileLineItem(ctx context.Context, orderID uuid.UUID, item LineItem) (StockMovement, error)
}
