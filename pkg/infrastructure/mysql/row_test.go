package mysql

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogmodel "storefront/pkg/catalog/domain/model"
	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
)

func TestOrderRowStoresCashOnDeliveryMarker(t *testing.T) {
	order := &model.Order{ID: uuid.New(), Number: 1, PaymentProof: model.CashOnDelivery(), Status: model.Unpaid}

	row, err := newOrderRow(order)
	require.NoError(t, err)
	assert.JSONEq(t, `"Cash On Delivery"`, string(row.PaymentProof))

	restored, err := row.toModel(nil)
	require.NoError(t, err)
	assert.True(t, restored.PaymentProof.CashOnDelivery)
	assert.Equal(t, model.Unpaid, restored.Status)
	assert.NotNil(t, restored.Items)
}

func TestOrderItemRowWithoutImage(t *testing.T) {
	orderID := uuid.New()
	item := model.LineItem{Line: 2, ProductID: uuid.New(), Quantity: 3, Price: decimal.NewFromInt(5),
		ReconcileState: model.LineItemPending}

	itemRow, err := newOrderItemRow(orderID, item)
	require.NoError(t, err)
	assert.Nil(t, itemRow.ProductImage)

	restored, err := orderRow{ID: orderID, PaymentProof: []byte(`"Cash On Delivery"`)}.toModel([]orderItemRow{itemRow})
	require.NoError(t, err)
	require.Len(t, restored.Items, 1)
	assert.Nil(t, restored.Items[0].ProductImage)
	assert.Equal(t, model.LineItemPending, restored.Items[0].ReconcileState)
}

func TestProductRowImagesAndRating(t *testing.T) {
	rating := 4.5
	product := &catalogmodel.Product{
		ID:     uuid.New(),
		Name:   "Lamp",
		Price:  decimal.RequireFromString("12.50"),
		Images: []domain.Image{{URL: "https://cdn/l.png", Key: "products/l.png"}},
		Rating: &rating,
	}

	row, err := newProductRow(product)
	require.NoError(t, err)
	restored, err := row.toModel()
	require.NoError(t, err)

	assert.Equal(t, product.Images, restored.Images)
	require.NotNil(t, restored.Rating)
	assert.InDelta(t, 4.5, *restored.Rating, 0.0001)

	empty, err := newProductRow(&catalogmodel.Product{ID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty.Images))
	assert.False(t, empty.Rating.Valid)
}
