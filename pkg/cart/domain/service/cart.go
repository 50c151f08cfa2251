package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"storefront/pkg/cart/domain/model"
	"storefront/pkg/common/domain"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*model.Cart, error)
	AddItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*model.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*model.Cart, error)
	RemoveItem(ctx context.Context, userID string, productID uuid.UUID) (*model.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

func NewCartService(repo model.CartRepository, catalog model.ProductCatalog) CartService {
	return &cartService{repo: repo, catalog: catalog}
}

type cartService struct {
	repo    model.CartRepository
	catalog model.ProductCatalog
}

func (s *cartService) GetCart(ctx context.Context, userID string) (*model.Cart, error) {
	cart, err := s.repo.Find(ctx, userID)
	if errors.Is(err, model.ErrCartNotFound) {
		return &model.Cart{UserID: userID, Items: []model.Item{}}, nil
	}
	return cart, err
}

func (s *cartService) AddItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*model.Cart, error) {
	if quantity == 0 {
		quantity = 1
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if errors.Is(err, model.ErrProductNotFound) {
		verr := domain.NewValidationError()
		verr.Add("productId", "product does not exist")
		return nil, verr
	}
	if err != nil {
		return nil, err
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Add(model.Item{
		ProductID:   productID,
		ProductName: product.Name,
		Image:       product.Image,
		Price:       product.Price,
		Quantity:    quantity,
	})
	return cart, s.save(ctx, cart)
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*model.Cart, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cart.SetQuantity(productID, quantity); err != nil {
		return nil, err
	}
	return cart, s.save(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, userID string, productID uuid.UUID) (*model.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cart.Remove(productID); err != nil {
		return nil, err
	}
	return cart, s.save(ctx, cart)
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.Delete(ctx, userID)
	if errors.Is(err, model.ErrCartNotFound) {
		return nil
	}
	return err
}

func (s *cartService) save(ctx context.Context, cart *model.Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	return errors.Wrapf(s.repo.Save(ctx, cart), "failed to save cart of user %s", cart.UserID)
}

func validateQuantity(quantity int) error {
	verr := domain.NewValidationError()
	if quantity < 1 {
		verr.Add("quantity", "must be at least 1")
	}
	return verr.Err()
}
