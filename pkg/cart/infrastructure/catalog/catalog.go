package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"storefront/pkg/cart/domain/model"
	catalogmodel "storefront/pkg/catalog/domain/model"
)

func NewProductCatalog(repo catalogmodel.ProductRepository) model.ProductCatalog {
	return &productCatalog{repo: repo}
}

type productCatalog struct {
	repo catalogmodel.ProductRepository
}

func (c *productCatalog) FindProduct(ctx context.Context, id uuid.UUID) (model.Product, error) {
	product, err := c.repo.Find(ctx, id)
	if errors.Is(err, catalogmodel.ErrProductNotFound) {
		return model.Product{}, model.ErrProductNotFound
	}
	if err != nil {
		return model.Product{}, err
	}

	result := model.Product{ID: product.ID, Name: product.Name, Price: product.EffectivePrice()}
	if image, ok := product.MainImage(); ok {
		result.Image = &image
	}
	return result, nil
}
