package tests

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
	"storefront/pkg/order/domain/service"
)

func setup(t *testing.T) (service.OrderService, *mockStore, *mockObjectStorage, *mockEventDispatcher) {
	store := newMockStore()
	storage := &mockObjectStorage{objects: make(map[string][]byte)}
	dispatcher := &mockEventDispatcher{}
	orderService := service.NewOrderService(store, store, store, storage, dispatcher, service.WithRetry(1, 0))
	return orderService, store, storage, dispatcher
}

func amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func newOrder(items ...service.NewLineItem) service.NewOrder {
	return service.NewOrder{
		UserID:          "user-1",
		Name:            "Jane Doe",
		Amount:          amount("100"),
		PhoneNumber:     "+100200300",
		DeliveryAddress: "Main st. 1",
		Items:           items,
	}
}

func item(productID uuid.UUID, quantity int) service.NewLineItem {
	return service.NewLineItem{ProductID: productID, Quantity: quantity}
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		orderService, store, _, dispatcher := setup(t)
		productID := store.addProduct("Mouse", "25.50", 10)

		order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 2)))

		require.NoError(t, err)
		assert.Equal(t, int64(1), order.Number)
		assert.Equal(t, model.Pending, order.Status)
		assert.Equal(t, model.DefaultAvatar, order.Avatar)
		assert.True(t, order.PaymentProof.CashOnDelivery)
		assert.False(t, order.StockReconciled)
		require.Len(t, order.Items, 1)
		assert.Equal(t, "Mouse", order.Items[0].ProductName)
		assert.True(t, decimal.RequireFromString("25.50").Equal(order.Items[0].Price))
		assert.Equal(t, model.LineItemPending, order.Items[0].ReconcileState)

		assert.Equal(t, 10, store.product(productID).stock, "creation has no stock side effect")

		require.Len(t, dispatcher.events, 1)
		event, ok := dispatcher.events[0].(model.OrderCreated)
		require.True(t, ok)
		assert.Equal(t, int64(1), event.OrderNumber)
	})

	t.Run("Numbers are sequential", func(t *testing.T) {
		orderService, store, _, _ := setup(t)
		productID := store.addProduct("Mouse", "25.50", 10)

		first, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
		require.NoError(t, err)
		second, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
		require.NoError(t, err)

		assert.Equal(t, int64(1), first.Number)
		assert.Equal(t, int64(2), second.Number)
	})

	t.Run("Payment image upload", func(t *testing.T) {
		orderService, store, storage, _ := setup(t)
		productID := store.addProduct("Mouse", "25.50", 10)
		input := newOrder(item(productID, 1))
		input.PaymentUpload = &domain.Upload{Filename: "receipt.jpg", ContentType: "image/jpeg", Body: []byte("jpg")}

		order, err := orderService.CreateOrder(ctx, input)

		require.NoError(t, err)
		assert.False(t, order.PaymentProof.CashOnDelivery)
		assert.Equal(t, "payments/receipt.jpg", order.PaymentProof.Image.Key)
		assert.Contains(t, storage.objects, "payments/receipt.jpg")
	})

	t.Run("Explicit price is kept", func(t *testing.T) {
		orderService, store, _, _ := setup(t)
		productID := store.addProduct("Mouse", "25.50", 10)
		line := item(productID, 1)
		line.Price = amount("20")
		line.ProductName = "Gaming mouse"

		order, err := orderService.CreateOrder(ctx, newOrder(line))

		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("20").Equal(order.Items[0].Price))
		assert.Equal(t, "Gaming mouse", order.Items[0].ProductName)
	})

	t.Run("Fail on missing required fields", func(t *testing.T) {
		orderService, store, _, dispatcher := setup(t)
		productID := store.addProduct("Mouse", "25.50", 10)
		input := newOrder(item(productID, 0))
		input.UserID = ""
		input.Name = " "
		input.Amount = nil

		_, err := orderService.CreateOrder(ctx, input)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "userId")
		assert.Contains(t, verr.Fields, "name")
		assert.Contains(t, verr.Fields, "amount")
		assert.Contains(t, verr.Fields, "orderDetails[0].quantity")
		assert.Empty(t, store.orders)
		assert.Empty(t, dispatcher.events)
	})

	t.Run("Fail on empty order", func(t *testing.T) {
		orderService, _, _, _ := setup(t)

		_, err := orderService.CreateOrder(ctx, newOrder())

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "orderDetails")
	})

	t.Run("Unknown product rejects the whole order", func(t *testing.T) {
		orderService, store, _, _ := setup(t)
		productID := store.addProduct("Mouse", "25.50", 10)

		_, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1), item(uuid.New(), 1)))

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "orderDetails[1].productId")
		assert.Empty(t, store.orders)
		assert.Equal(t, int64(0), store.counter, "no number is allocated for a rejected order")
	})
}

func TestConcurrentCreationAssignsUniqueNumbers(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("Mouse", "25.50", 1000)

	const n = 50
	numbers := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
			if assert.NoError(t, err) {
				numbers <- order.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool)
	for number := range numbers {
		assert.False(t, seen[number], "duplicate order number %d", number)
		seen[number] = true
	}
	assert.Len(t, seen, n)
}

func TestSnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("Keyboard", "80", 5)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
	require.NoError(t, err)

	store.renameProduct(productID, "Keyboard v2", "120")

	stored, err := orderService.GetOrder(ctx, order.Number)
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", stored.Items[0].ProductName)
	assert.True(t, decimal.RequireFromString("80").Equal(stored.Items[0].Price))
}

func TestUpdateOrder(t *testing.T) {
	ctx := context.Background()
	orderService, store, storage, dispatcher := setup(t)
	productID := store.addProduct("Mouse", "25.50", 10)
	input := newOrder(item(productID, 1))
	input.PaymentUpload = &domain.Upload{Filename: "first.jpg"}
	order, err := orderService.CreateOrder(ctx, input)
	require.NoError(t, err)

	t.Run("Status change", func(t *testing.T) {
		dispatcher.Reset()
		status := model.Processing
		address := "Second st. 2"

		result, err := orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{Status: &status, DeliveryAddress: &address}, nil)

		require.NoError(t, err)
		assert.Equal(t, model.Processing, result.Order.Status)
		assert.Equal(t, address, result.Order.DeliveryAddress)
		assert.Nil(t, result.Reconciliation)
		assert.Equal(t, 10, store.product(productID).stock)

		events := dispatcher.ofType("OrderStatusChanged")
		require.Len(t, events, 1)
		changed := events[0].(model.OrderStatusChanged)
		assert.Equal(t, model.Pending, changed.OldStatus)
		assert.Equal(t, model.Processing, changed.NewStatus)
		assert.Equal(t, "user-1", changed.UserID)
	})

	t.Run("Same status dispatches nothing", func(t *testing.T) {
		dispatcher.Reset()
		status := model.Processing
		_, err := orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{Status: &status}, nil)
		require.NoError(t, err)
		assert.Empty(t, dispatcher.ofType("OrderStatusChanged"))
	})

	t.Run("New payment image replaces the old one", func(t *testing.T) {
		result, err := orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{}, &domain.Upload{Filename: "second.jpg"})
		require.NoError(t, err)
		assert.Equal(t, "payments/second.jpg", result.Order.PaymentProof.Image.Key)
		assert.Contains(t, storage.deleted, "payments/first.jpg")
	})

	t.Run("Replaced proof releases the old receipt", func(t *testing.T) {
		linked := model.ReceiptImage(domain.Image{URL: "https://cdn.test/payments/linked.jpg", Key: "payments/linked.jpg"})
		result, err := orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{PaymentProof: &linked}, nil)
		require.NoError(t, err)
		assert.Equal(t, "payments/linked.jpg", result.Order.PaymentProof.Image.Key)
		assert.Contains(t, storage.deleted, "payments/second.jpg")

		_, err = orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{PaymentProof: &linked}, nil)
		require.NoError(t, err)
		assert.NotContains(t, storage.deleted, "payments/linked.jpg", "same proof is kept")

		cod := model.CashOnDelivery()
		result, err = orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{PaymentProof: &cod}, nil)
		require.NoError(t, err)
		assert.True(t, result.Order.PaymentProof.CashOnDelivery)
		assert.Contains(t, storage.deleted, "payments/linked.jpg")
	})

	t.Run("Fail on unknown order", func(t *testing.T) {
		status := model.Paid
		_, err := orderService.UpdateOrder(ctx, 999, service.OrderPatch{Status: &status}, nil)
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
	})

	t.Run("Fail on negative amount", func(t *testing.T) {
		_, err := orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{Amount: amount("-1")}, nil)
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("Mouse", "25.50", 10)

	mine, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
	require.NoError(t, err)
	other := newOrder(item(productID, 1))
	other.UserID = "user-2"
	_, err = orderService.CreateOrder(ctx, other)
	require.NoError(t, err)

	all, err := orderService.GetOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := orderService.GetUserOrders(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.Number, own[0].Number)

	found, err := orderService.GetOrderForUser(ctx, mine.Number, "user-1")
	require.NoError(t, err)
	assert.Equal(t, mine.ID, found.ID)

	_, err = orderService.GetOrderForUser(ctx, mine.Number, "user-2")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestDeleteOrders(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, dispatcher := setup(t)
	productID := store.addProduct("Mouse", "25.50", 10)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 4)))
	require.NoError(t, err)
	_, err = orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
	require.NoError(t, err)

	delivered := model.Delivered
	_, err = orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{Status: &delivered}, nil)
	require.NoError(t, err)
	require.Equal(t, 6, store.product(productID).stock)

	t.Run("Delete keeps stock adjustments", func(t *testing.T) {
		require.NoError(t, orderService.DeleteOrder(ctx, order.Number))
		assert.Equal(t, 6, store.product(productID).stock)
		assert.Equal(t, 4, store.product(productID).sold)

		_, err := orderService.GetOrder(ctx, order.Number)
		assert.ErrorIs(t, err, model.ErrOrderNotFound)
		assert.ErrorIs(t, orderService.DeleteOrder(ctx, order.Number), model.ErrOrderNotFound)
	})

	t.Run("Delete all", func(t *testing.T) {
		dispatcher.Reset()
		count, err := orderService.DeleteAllOrders(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		orders, err := orderService.GetOrders(ctx)
		require.NoError(t, err)
		assert.Empty(t, orders)
		assert.Len(t, dispatcher.ofType("AllOrdersDeleted"), 1)
	})

	t.Run("Numbers keep increasing after deletion", func(t *testing.T) {
		next, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
		require.NoError(t, err)
		assert.Equal(t, int64(3), next.Number)
	})
}
