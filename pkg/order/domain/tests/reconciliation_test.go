package tests

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/pkg/order/domain/model"
	"storefront/pkg/order/domain/service"
)

func deliver(t *testing.T, orderService service.OrderService, number int64) *service.UpdateResult {
	t.Helper()
	status := model.Delivered
	result, err := orderService.UpdateOrder(context.Background(), number, service.OrderPatch{Status: &status}, nil)
	require.NoError(t, err)
	return result
}

func TestDeliveryMovesStockToSold(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, dispatcher := setup(t)
	productID := store.addProduct("Monitor", "300", 10)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 3)))
	require.NoError(t, err)

	result := deliver(t, orderService, order.Number)

	assert.Equal(t, 7, store.product(productID).stock)
	assert.Equal(t, 3, store.product(productID).sold)
	assert.Equal(t, model.Delivered, result.Order.Status)
	assert.True(t, result.Order.StockReconciled)
	require.NotNil(t, result.Reconciliation)
	assert.True(t, result.Reconciliation.Complete)
	require.Len(t, result.Reconciliation.Items, 1)
	assert.Equal(t, model.OutcomeApplied, result.Reconciliation.Items[0].Outcome)

	events := dispatcher.ofType("StockReconciled")
	require.Len(t, events, 1)
	reconciled := events[0].(model.StockReconciled)
	assert.Equal(t, 7, reconciled.NewQuantity)
	assert.Equal(t, 3, reconciled.NewSold)
}

func TestDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("P", "10", 5)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 2)))
	require.NoError(t, err)
	require.Equal(t, model.Pending, order.Status)

	first := deliver(t, orderService, order.Number)
	assert.Equal(t, 3, store.product(productID).stock)
	assert.Equal(t, 2, store.product(productID).sold)
	assert.Equal(t, model.Delivered, first.Order.Status)

	second := deliver(t, orderService, order.Number)
	assert.Equal(t, 3, store.product(productID).stock)
	assert.Equal(t, 2, store.product(productID).sold)
	assert.Nil(t, second.Reconciliation, "an already reconciled order is a silent no-op")
	assert.True(t, second.Order.StockReconciled)

	retried, err := orderService.RetryReconciliation(ctx, order.Number)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSkipped, retried.Reconciliation.Items[0].Outcome)
	assert.Equal(t, 3, store.product(productID).stock)
}

func TestConcurrentDeliveryOfSameOrderAppliesOnce(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("P", "10", 50)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 5)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := model.Delivered
			_, _ = orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{Status: &status}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 45, store.product(productID).stock)
	assert.Equal(t, 5, store.product(productID).sold)
}

func TestConcurrentDeliveriesOfDifferentOrdersDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("P", "10", 100)

	const n = 20
	numbers := make([]int64, n)
	for i := range numbers {
		order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 2)))
		require.NoError(t, err)
		numbers[i] = order.Number
	}

	var wg sync.WaitGroup
	for _, number := range numbers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := model.Delivered
			_, err := orderService.UpdateOrder(ctx, number, service.OrderPatch{Status: &status}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 60, store.product(productID).stock)
	assert.Equal(t, 40, store.product(productID).sold)
}

func TestMissingProductDoesNotAbortOtherItems(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, dispatcher := setup(t)
	gone := store.addProduct("Discontinued", "5", 10)
	kept := store.addProduct("Bestseller", "5", 10)
	order, err := orderService.CreateOrder(ctx, newOrder(item(gone, 1), item(kept, 4)))
	require.NoError(t, err)
	store.removeProduct(gone)

	result := deliver(t, orderService, order.Number)

	assert.Equal(t, model.Delivered, result.Order.Status)
	assert.Equal(t, 6, store.product(kept).stock)
	assert.Equal(t, 4, store.product(kept).sold)

	report := result.Reconciliation
	require.NotNil(t, report)
	require.Len(t, report.Items, 2)
	assert.Equal(t, model.OutcomeProductNotFound, report.Items[0].Outcome)
	assert.NotEmpty(t, report.Items[0].Error)
	assert.Equal(t, model.OutcomeApplied, report.Items[1].Outcome)
	assert.True(t, report.HasFailures())
	assert.True(t, report.Complete, "a missing product is final, not retried")

	failed := dispatcher.ofType("ReconciliationFailed")
	require.Len(t, failed, 1)
	assert.Equal(t, gone, failed[0].(model.ReconciliationFailed).ProductID)
}

func TestUnderflowClampsAtZeroAndFlagsShortfall(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, dispatcher := setup(t)
	productID := store.addProduct("Rare", "999", 1)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 5)))
	require.NoError(t, err)

	result := deliver(t, orderService, order.Number)

	assert.Equal(t, 0, store.product(productID).stock)
	assert.Equal(t, 5, store.product(productID).sold)
	assert.Equal(t, 4, result.Reconciliation.Items[0].Shortfall)
	assert.Equal(t, 4, result.Order.Items[0].Shortfall)

	stored, err := orderService.GetOrder(ctx, order.Number)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Items[0].Shortfall)

	shortfalls := dispatcher.ofType("StockShortfallDetected")
	require.Len(t, shortfalls, 1)
	assert.Equal(t, 4, shortfalls[0].(model.StockShortfallDetected).Shortfall)
}

func TestTransientFailureIsRetried(t *testing.T) {
	ctx := context.Background()

	t.Run("Within one pass", func(t *testing.T) {
		orderService, store, _, _ := setup(t)
		productID := store.addProduct("P", "1", 10)
		order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
		require.NoError(t, err)
		store.failNext(productID, 1)

		result := deliver(t, orderService, order.Number)

		assert.True(t, result.Reconciliation.Complete)
		assert.Equal(t, 9, store.product(productID).stock)
	})

	t.Run("By the pending sweep", func(t *testing.T) {
		orderService, store, _, _ := setup(t)
		flaky := store.addProduct("Flaky", "1", 10)
		steady := store.addProduct("Steady", "1", 10)
		order, err := orderService.CreateOrder(ctx, newOrder(item(flaky, 2), item(steady, 3)))
		require.NoError(t, err)
		store.failNext(flaky, 5)

		result := deliver(t, orderService, order.Number)

		report := result.Reconciliation
		assert.False(t, report.Complete)
		assert.Equal(t, model.OutcomeFailed, report.Items[0].Outcome)
		assert.Equal(t, model.OutcomeApplied, report.Items[1].Outcome)
		assert.False(t, result.Order.StockReconciled)
		assert.Equal(t, 10, store.product(flaky).stock)
		assert.Equal(t, 7, store.product(steady).stock)

		store.failNext(flaky, 0)
		completed, err := orderService.ReconcilePending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, completed)

		assert.Equal(t, 8, store.product(flaky).stock)
		assert.Equal(t, 7, store.product(steady).stock, "applied items are not applied again")

		stored, err := orderService.GetOrder(ctx, order.Number)
		require.NoError(t, err)
		assert.True(t, stored.StockReconciled)

		completed, err = orderService.ReconcilePending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, completed)
	})
}

func TestRetryReconciliationRequiresDelivery(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("P", "1", 10)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 1)))
	require.NoError(t, err)

	_, err = orderService.RetryReconciliation(ctx, order.Number)
	assert.ErrorIs(t, err, service.ErrOrderNotDelivered)

	_, err = orderService.RetryReconciliation(ctx, 404)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestLeavingDeliveredDoesNotReverseStock(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("P", "1", 10)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 2)))
	require.NoError(t, err)
	deliver(t, orderService, order.Number)

	cancelled := model.Cancelled
	_, err = orderService.UpdateOrder(ctx, order.Number, service.OrderPatch{Status: &cancelled}, nil)
	require.NoError(t, err)
	result := deliver(t, orderService, order.Number)

	assert.Nil(t, result.Reconciliation)
	assert.Equal(t, 8, store.product(productID).stock)
	assert.Equal(t, 2, store.product(productID).sold)
}

func TestItemClaimedElsewhereKeepsStoredState(t *testing.T) {
	ctx := context.Background()
	orderService, store, _, _ := setup(t)
	productID := store.addProduct("Gone", "10", 5)
	order, err := orderService.CreateOrder(ctx, newOrder(item(productID, 2)))
	require.NoError(t, err)
	store.removeProduct(productID)
	store.interleave = func(stored *model.LineItem) {
		stored.ReconcileState = model.LineItemProductNotFound
	}

	result := deliver(t, orderService, order.Number)

	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, model.LineItemProductNotFound, result.Order.Items[0].ReconcileState)
	assert.Equal(t, model.OutcomeSkipped, result.Reconciliation.Items[0].Outcome)
	assert.True(t, result.Order.StockReconciled)
}
