package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	catalogmodel "storefront/pkg/catalog/domain/model"
	"storefront/pkg/order/domain/model"
)

// NewProductCatalog exposes catalog products to the order context as snapshots.
func NewProductCatalog(repo catalogmodel.ProductRepository) model.ProductCatalog {
	return &productCatalog{repo: repo}
}

type productCatalog struct {
	repo catalogmodel.ProductRepository
}

func (c *productCatalog) FindProduct(ctx context.Context, id uuid.UUID) (model.ProductSnapshot, error) {
	product, err := c.repo.Find(ctx, id)
	if errors.Is(err, catalogmodel.ErrProductNotFound) {
		return model.ProductSnapshot{}, model.ErrProductNotFound
	}
	if err != nil {
		return model.ProductSnapshot{}, err
	}

	snapshot := model.ProductSnapshot{
		ID:    product.ID,
		Name:  product.Name,
		Price: product.EffectivePrice(),
	}
	if image, ok := product.MainImage(); ok {
		snapshot.Image = &image
	}
	return snapshot, nil
}
