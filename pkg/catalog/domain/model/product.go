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
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock quantity")
	ErrSoldCannotDecrease = errors.New("sold count cannot decrease")
)

const MaxDiscount = 100

type Product struct {
	ID               uuid.UUID       `json:"_id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	ShortDescription string          `json:"shortDescription"`
	FullDescription  string          `json:"fullDescription"`
	StockQuantity    int             `json:"stockQuantity"`
	Sold             int             `json:"sold"`
	CategoryID       string          `json:"category"`
	Discount         int             `json:"discount"`
	HasDiscount      bool            `json:"hasDiscount"`
	Images           []domain.Image  `json:"images"`
	VideoLink        string          `json:"videoLink,omitempty"`
	Rating           *float64        `json:"rating,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// EffectivePrice is the price after discount. Discount is ignored unless HasDiscount is set.
func (p Product) EffectivePrice() decimal.Decimal {
	if !p.HasDiscount || p.Discount <= 0 {
		return p.Price
	}
	off := p.Price.Mul(decimal.NewFromInt(int64(p.Discount))).Div(decimal.NewFromInt(100))
	return p.Price.Sub(off)
}

// MainImage returns the first image, if any.
func (p Product) MainImage() (domain.Image, bool) {
	if len(p.Images) == 0 {
		return domain.Image{}, false
	}
	return p.Images[0], true
}

type DiscountFilter int

const (
	AnyDiscount DiscountFilter = iota
	OnlyDiscounted
	OnlyFullPrice
)

type ProductFilter struct {
	CategoryID string
	Discount   DiscountFilter
}

// StockChange is the outcome of an atomic stock/sold adjustment.
type StockChange struct {
	ProductID     uuid.UUID
	Quantity      int
	StockQuantity int
	Sold          int
}

// ProductRepository persists products. Update writes descriptive fields only:
// stock and sold are changed exclusively through SetStock and ConsumeStock, which
// the storage layer implements as single atomic updates.
type ProductRepository interface {
	NextID() (uuid.UUID, error)
	Create(ctx context.Context, product *Product) error
	Update(ctx context.Context, product *Product) error
	Find(ctx context.Context, id uuid.UUID) (*Product, error)
	FindMany(ctx context.Context, filter ProductFilter) ([]Product, error)
	BestSellers(ctx context.Context, limit int) ([]Product, error)
	Delete(ctx context.Context, id uuid.UUID) error

	SetStock(ctx context.Context, id uuid.UUID, quantity int) error
	// ConsumeStock moves quantity units from stock to sold, failing with
	// ErrInsufficientStock instead of letting stock go negative.
	ConsumeStock(ctx context.Context, id uuid.UUID, quantity int) (StockChange, error)
}
