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
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotInCart   = errors.New("item not in cart")
	ErrProductNotFound = errors.New("product not found")
)

type Item struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Image       *domain.Image   `json:"image,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (i Item) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the single shopping cart of a user.
type Cart struct {
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Total())
	}
	return total
}

func (c *Cart) find(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add merges quantity into an existing item for the product or appends item.
func (c *Cart) Add(item Item) {
	if i := c.find(item.ProductID); i >= 0 {
		c.Items[i].Quantity += item.Quantity
		return
	}
	c.Items = append(c.Items, item)
}

func (c *Cart) SetQuantity(productID uuid.UUID, quantity int) error {
	i := c.find(productID)
	if i < 0 {
		return ErrItemNotInCart
	}
	c.Items[i].Quantity = quantity
	return nil
}

func (c *Cart) Remove(productID uuid.UUID) error {
	i := c.find(productID)
	if i < 0 {
		return ErrItemNotInCart
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

type Product struct {
	ID    uuid.UUID
	Name  string
	Price decimal.Decimal
	Image *domain.Image
}

type ProductCatalog interface {
	FindProduct(ctx context.Context, id uuid.UUID) (Product, error)
}

type CartRepository interface {
	Find(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, userID string) error
}
