package remote

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/domain"
)

// MemoryRepository keeps account carts in process.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.RemoteCart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]domain.RemoteCart)}
}

func (m *MemoryRepository) GetCart(_ context.Context, userID string) (*domain.RemoteCart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart, ok := m.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	cart.Items = append(domain.Snapshot{}, cart.Items...)
	return &cart, nil
}

func (m *MemoryRepository) UpsertCart(_ context.Context, userID string, items domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cart, ok := m.carts[userID]
	if !ok {
		cart = domain.RemoteCart{UserID: userID, CreatedAt: now}
	}
	cart.Items = append(domain.Snapshot{}, items...)
	cart.UpdatedAt = now
	m.carts[userID] = cart
	return nil
}

func (m *MemoryRepository) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[userID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}

// NopCache never holds anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*domain.RemoteCart, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, string, *domain.RemoteCart) error   { return nil }
func (NopCache) Delete(context.Context, string) error                    { return nil }
