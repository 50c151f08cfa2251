package tests

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"storefront/pkg/catalog/domain/model"
	"storefront/pkg/common/domain"
)

var _ model.ProductRepository = &mockProductRepository{}

type mockProductRepository struct {
	mu        sync.Mutex
	store     map[uuid.UUID]*model.Product
	updateErr error
}

func (m *mockProductRepository) NextID() (uuid.UUID, error) { return uuid.New(), nil }

func (m *mockProductRepository) Create(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.store[p.ID] = &clone
	return nil
}

func (m *mockProductRepository) Update(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	existing, ok := m.store[p.ID]
	if !ok {
		return model.ErrProductNotFound
	}
	clone := *p
	clone.StockQuantity = existing.StockQuantity
	clone.Sold = existing.Sold
	m.store[p.ID] = &clone
	return nil
}

func (m *mockProductRepository) Find(_ context.Context, id uuid.UUID) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.store[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, model.ErrProductNotFound
}

func (m *mockProductRepository) FindMany(_ context.Context, filter model.ProductFilter) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Product
	for _, p := range m.store {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		discounted := p.HasDiscount && p.Discount > 0
		if filter.Discount == model.OnlyDiscounted && !discounted {
			continue
		}
		if filter.Discount == model.OnlyFullPrice && discounted {
			continue
		}
		result = append(result, *p)
	}
	return result, nil
}

func (m *mockProductRepository) BestSellers(_ context.Context, limit int) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Product
	for _, p := range m.store {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sold > result[j].Sold })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockProductRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return model.ErrProductNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockProductRepository) SetStock(_ context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return model.ErrProductNotFound
	}
	p.StockQuantity = quantity
	return nil
}

func (m *mockProductRepository) ConsumeStock(_ context.Context, id uuid.UUID, quantity int) (model.StockChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return model.StockChange{}, model.ErrProductNotFound
	}
	if p.StockQuantity < quantity {
		return model.StockChange{}, model.ErrInsufficientStock
	}
	p.StockQuantity -= quantity
	p.Sold += quantity
	return model.StockChange{ProductID: id, Quantity: quantity, StockQuantity: p.StockQuantity, Sold: p.Sold}, nil
}

var _ domain.ObjectStorage = &mockObjectStorage{}

type mockObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failOn  string
}

func newMockObjectStorage() *mockObjectStorage {
	return &mockObjectStorage{objects: make(map[string][]byte)}
}

func (m *mockObjectStorage) Put(_ context.Context, body []byte, _ string, keyHint string) (domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && keyHint == m.failOn {
		return domain.Image{}, fmt.Errorf("storage unavailable")
	}
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
