package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storefront/pkg/catalog/domain/model"
	"storefront/pkg/common/domain"
)

const (
	DefaultBestSellersLimit = 5
	imageFolder             = "products"
)

type ProductInput struct {
	Name             string
	Price            decimal.Decimal
	ShortDescription string
	FullDescription  string
	StockQuantity    int
	CategoryID       string
	Discount         int
	HasDiscount      bool
	VideoLink        string
	Rating           *float64
}

// ProductPatch holds the fields of a partial update; nil means "leave as is".
type ProductPatch struct {
	Name             *string
	Price            *decimal.Decimal
	ShortDescription *string
	FullDescription  *string
	StockQuantity    *int
	Sold             *int
	CategoryID       *string
	Discount         *int
	HasDiscount      *bool
	VideoLink        *string
	Rating           *float64
}

type ProductService interface {
	CreateProduct(ctx context.Context, input ProductInput, images []domain.Upload) (*model.Product, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, patch ProductPatch, images []domain.Upload) (*model.Product, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error)
	ListProducts(ctx context.Context, filter model.ProductFilter) ([]model.Product, error)
	BestSellers(ctx context.Context, limit int) ([]model.Product, error)
}

func NewProductService(repo model.ProductRepository, storage domain.ObjectStorage, dispatcher domain.EventDispatcher) ProductService {
	return &productService{repo: repo, storage: storage, dispatcher: dispatcher}
}

type productService struct {
	repo       model.ProductRepository
	storage    domain.ObjectStorage
	dispatcher domain.EventDispatcher
}

func (s *productService) CreateProduct(ctx context.Context, input ProductInput, images []domain.Upload) (*model.Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	productID, err := s.repo.NextID()
	if err != nil {
		return nil, err
	}

	stored, err := s.uploadImages(ctx, images)
	if err != nil {
		return nil, err
	}

	discount := 0
	if input.HasDiscount {
		discount = input.Discount
	}

	now := time.Now().UTC()
	product := &model.Product{
		ID:               productID,
		Name:             input.Name,
		Price:            input.Price,
		ShortDescription: input.ShortDescription,
		FullDescription:  input.FullDescription,
		StockQuantity:    input.StockQuantity,
		CategoryID:       input.CategoryID,
		Discount:         discount,
		HasDiscount:      input.HasDiscount,
		Images:           stored,
		VideoLink:        input.VideoLink,
		Rating:           input.Rating,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		s.releaseImages(ctx, stored)
		return nil, err
	}

	s.dispatchEvents(model.ProductCreated{ProductID: productID, Name: product.Name})
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, productID uuid.UUID, patch ProductPatch, images []domain.Upload) (*model.Product, error) {
	product, err := s.repo.Find(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := validatePatch(patch, product); err != nil {
		return nil, err
	}

	increase := 0
	if patch.Sold != nil {
		increase = *patch.Sold - product.Sold
	}
	if increase > product.StockQuantity {
		return nil, model.ErrInsufficientStock
	}

	applyPatch(product, patch)

	var replaced []domain.Image
	if len(images) > 0 {
		stored, err := s.uploadImages(ctx, images)
		if err != nil {
			return nil, err
		}
		replaced = product.Images
		product.Images = stored
	}

	// Descriptive fields are saved before stock moves; each stock step commits on its own.
	product.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, product); err != nil {
		if len(images) > 0 {
			s.releaseImages(ctx, product.Images)
		}
		return nil, err
	}
	s.releaseImages(ctx, replaced)

	var events []domain.Event
	if increase > 0 {
		change, err := s.repo.ConsumeStock(ctx, productID, increase)
		if err != nil {
			return nil, err
		}
		product.StockQuantity = change.StockQuantity
		product.Sold = change.Sold
		events = append(events, model.ProductStockChanged{
			ProductID:    productID,
			ChangeAmount: -increase,
			NewQuantity:  change.StockQuantity,
		})
	}

	if patch.StockQuantity != nil {
		if err := s.repo.SetStock(ctx, productID, *patch.StockQuantity); err != nil {
			return nil, err
		}
		events = append(events, model.ProductStockChanged{
			ProductID:    productID,
			ChangeAmount: *patch.StockQuantity - product.StockQuantity,
			NewQuantity:  *patch.StockQuantity,
		})
		product.StockQuantity = *patch.StockQuantity
	}

	events = append(events, model.ProductUpdated{ProductID: productID})
	s.dispatchEvents(events...)
	return product, nil
}

func (s *productService) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	product, err := s.repo.Find(ctx, productID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, productID); err != nil {
		return err
	}
	s.releaseImages(ctx, product.Images)

	s.dispatchEvents(model.ProductDeleted{ProductID: productID})
	return nil
}

func (s *productService) GetProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	return s.repo.Find(ctx, productID)
}

func (s *productService) ListProducts(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	return s.repo.FindMany(ctx, filter)
}

func (s *productService) BestSellers(ctx context.Context, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = DefaultBestSellersLimit
	}
	return s.repo.BestSellers(ctx, limit)
}

func (s *productService) uploadImages(ctx context.Context, uploads []domain.Upload) ([]domain.Image, error) {
	if len(uploads) == 0 {
		return nil, nil
	}

	stored := make([]domain.Image, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, upload := range uploads {
		g.Go(func() error {
			image, err := s.storage.Put(gctx, upload.Body, upload.ContentType, imageFolder+"/"+upload.Filename)
			if err != nil {
				return errors.Wrapf(err, "upload image %q", upload.Filename)
			}
			stored[i] = image
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.releaseImages(ctx, stored)
		return nil, err
	}
	return stored, nil
}

func (s *productService) releaseImages(ctx context.Context, images []domain.Image) {
	for _, image := range images {
		if image.Key == "" {
			continue
		}
		if err := s.storage.Delete(ctx, image.Key); err != nil {
			log.WithError(err).WithField("key", image.Key).Error("failed to release product image")
		}
	}
}

func (s *productService) dispatchEvents(events ...domain.Event) {
	for _, event := range events {
		if err := s.dispatcher.Dispatch(event); err != nil {
			log.WithError(err).WithField("event", event.Type()).Error("failed to dispatch event")
		}
	}
}

func validateInput(input ProductInput) error {
	verr := domain.NewValidationError()
	if input.Name == "" {
		verr.Add("name", "name is required")
	}
	if input.Price.IsNegative() {
		verr.Add("price", "price cannot be negative")
	}
	if input.StockQuantity < 0 {
		verr.Add("stockQuantity", "stock quantity cannot be negative")
	}
	if input.CategoryID == "" {
		verr.Add("category", "category is required")
	}
	if input.HasDiscount && (input.Discount < 0 || input.Discount > model.MaxDiscount) {
		verr.Addf("discount", "discount must be between 0 and %d", model.MaxDiscount)
	}
	return verr.Err()
}

func validatePatch(patch ProductPatch, product *model.Product) error {
	if patch.Sold != nil && *patch.Sold < product.Sold {
		return model.ErrSoldCannotDecrease
	}

	verr := domain.NewValidationError()
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		verr.Add("name", "name cannot be empty")
	}
	if patch.Price != nil && patch.Price.IsNegative() {
		verr.Add("price", "price cannot be negative")
	}
	if patch.StockQuantity != nil && *patch.StockQuantity < 0 {
		verr.Add("stockQuantity", "stock quantity cannot be negative")
	}
	if patch.CategoryID != nil && *patch.CategoryID == "" {
		verr.Add("category", "category cannot be empty")
	}
	if patch.Discount != nil && (*patch.Discount < 0 || *patch.Discount > model.MaxDiscount) {
		verr.Addf("discount", "discount must be between 0 and %d", model.MaxDiscount)
	}
	return verr.Err()
}

func applyPatch(product *model.Product, patch ProductPatch) {
	if patch.Name != nil {
		product.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Price != nil {
		product.Price = *patch.Price
	}
	if patch.ShortDescription != nil {
		product.ShortDescription = *patch.ShortDescription
	}
	if patch.FullDescription != nil {
		product.FullDescription = *patch.FullDescription
	}
	if patch.CategoryID != nil {
		product.CategoryID = *patch.CategoryID
	}
	if patch.HasDiscount != nil {
		product.HasDiscount = *patch.HasDiscount
	}
	if patch.Discount != nil {
		product.Discount = *patch.Discount
	}
	if !product.HasDiscount {
		product.Discount = 0
	}
	if patch.VideoLink != nil {
		product.VideoLink = *patch.VideoLink
	}
	if patch.Rating != nil {
		product.Rating = patch.Rating
	}
}
