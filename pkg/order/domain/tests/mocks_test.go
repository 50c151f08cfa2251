package tests

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
)

var errStorageUnavailable = errors.New("storage unavailable")

type product struct {
	name  string
	price decimal.Decimal
	stock int
	sold  int
}

var (
	_ model.OrderRepository    = &mockStore{}
	_ model.LineItemReconciler = &mockStore{}
	_ model.ProductCatalog     = &mockStore{}
)

// mockStore keeps orders and products behind one lock, which stands in for the
// atomicity the real storage gives a single reconciliation unit.
type mockStore struct {
	mu       sync.Mutex
	orders   map[int64]*model.Order
	products map[uuid.UUID]*product
	counter  int64
	// failures makes ReconcileLineItem fail transiently this many times per product.
	failures map[uuid.UUID]int
	// interleave runs once before the next claim, acting as a concurrent reconciler.
	interleave func(stored *model.LineItem)
}

func newMockStore() *mockStore {
	return &mockStore{
		orders:   make(map[int64]*model.Order),
		products: make(map[uuid.UUID]*product),
		failures: make(map[uuid.UUID]int),
	}
}

func (m *mockStore) addProduct(name, price string, stock int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.products[id] = &product{name: name, price: decimal.RequireFromString(price), stock: stock}
	return id
}

func (m *mockStore) product(id uuid.UUID) product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.products[id]
}

func (m *mockStore) removeProduct(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

func (m *mockStore) renameProduct(id uuid.UUID, name, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].name = name
	m.products[id].price = decimal.RequireFromString(price)
}

func (m *mockStore) failNext(id uuid.UUID, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = times
}

func (m *mockStore) FindProduct(_ context.Context, id uuid.UUID) (model.ProductSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return model.ProductSnapshot{}, model.ErrProductNotFound
	}
	return model.ProductSnapshot{ID: id, Name: p.name, Price: p.price}, nil
}

func (m *mockStore) NextID() (uuid.UUID, error) { return uuid.New(), nil }

func (m *mockStore) NextNumber(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return m.counter, nil
}

func cloneOrder(o *model.Order) *model.Order {
	clone := *o
	clone.Items = append([]model.LineItem(nil), o.Items...)
	return &clone
}

func (m *mockStore) Create(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.Number]; exists {
		return errors.New("duplicate order number")
	}
	m.orders[order.Number] = cloneOrder(order)
	return nil
}

func (m *mockStore) Update(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orders[order.Number]
	if !ok {
		return model.ErrOrderNotFound
	}
	if existing.Version != order.Version-1 {
		return model.ErrOptimisticLock
	}
	updated := cloneOrder(order)
	updated.Items = existing.Items
	updated.StockReconciled = existing.StockReconciled
	m.orders[order.Number] = updated
	return nil
}

func (m *mockStore) Find(_ context.Context, number int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[number]; ok {
		return cloneOrder(o), nil
	}
	return nil, model.ErrOrderNotFound
}

func (m *mockStore) FindForUser(ctx context.Context, number int64, userID string) (*model.Order, error) {
	o, err := m.Find(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, model.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockStore) list(match func(o *model.Order) bool) []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Order
	for _, o := range m.orders {
		if match(o) {
			result = append(result, *cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result
}

func (m *mockStore) FindAll(_ context.Context) ([]model.Order, error) {
	return m.list(func(*model.Order) bool { return true }), nil
}

func (m *mockStore) FindByUser(_ context.Context, userID string) ([]model.Order, error) {
	return m.list(func(o *model.Order) bool { return o.UserID == userID }), nil
}

func (m *mockStore) FindUnreconciled(_ context.Context, limit int) ([]model.Order, error) {
	result := m.list(func(o *model.Order) bool { return o.NeedsReconciliation() })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockStore) MarkReconciled(_ context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			o.StockReconciled = true
			return nil
		}
	}
	return model.ErrOrderNotFound
}

func (m *mockStore) Delete(_ context.Context, number int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	delete(m.orders, number)
	return o, nil
}

func (m *mockStore) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.orders))
	m.orders = make(map[int64]*model.Order)
	return n, nil
}

func (m *mockStore) ReconcileLineItem(_ context.Context, orderID uuid.UUID, item model.LineItem) (model.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored *model.LineItem
	for _, o := range m.orders {
		if o.ID != orderID {
			continue
		}
		for i := range o.Items {
			if o.Items[i].Line == item.Line {
				stored = &o.Items[i]
			}
		}
	}
	if stored == nil {
		return model.StockMovement{}, model.ErrOrderNotFound
	}
	if m.interleave != nil {
		m.interleave(stored)
		m.interleave = nil
	}
	if stored.ReconcileState != model.LineItemPending {
		return model.StockMovement{}, model.ErrLineItemAlreadyReconciled
	}

	if m.failures[item.ProductID] > 0 {
		m.failures[item.ProductID]--
		return model.StockMovement{}, errStorageUnavailable
	}

	p, ok := m.products[item.ProductID]
	if !ok {
		stored.ReconcileState = model.LineItemProductNotFound
		return model.StockMovement{}, model.ErrProductNotFound
	}

	shortfall := 0
	if p.stock < item.Quantity {
		shortfall = item.Quantity - p.stock
	}
	p.stock = max(p.stock-item.Quantity, 0)
	p.sold += item.Quantity
	stored.ReconcileState = model.LineItemApplied
	stored.Shortfall = shortfall

	return model.StockMovement{
		ProductID:     item.ProductID,
		Quantity:      item.Quantity,
		StockQuantity: p.stock,
		Sold:          p.sold,
		Shortfall:     shortfall,
	}, nil
}

type mockObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (m *mockObjectStorage) Put(_ context.Context, body []byte, _ string, keyHint string) (domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[keyHint] = body
	return domain.Image{URL: "https://cdn.test/" + keyHint, Key: keyHint}, nil
}

func (m *mockObjectStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type mockEventDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockEventDispatcher) Dispatch(event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *mockEventDispatcher) ofType(name string) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.events {
		if e.Type() == name {
			result = append(result, e)
		}
	}
	return result
}
