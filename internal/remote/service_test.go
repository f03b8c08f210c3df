package remote

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockRepository struct {
	m     sync.RWMutex
	cart  *domain.RemoteCart
	err   error
	gets  int
	saved domain.Snapshot
}

func (m *mockRepository) GetCart(_ context.Context, userID string) (*domain.RemoteCart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, ErrCartNotFound
	}
	return m.cart, nil
}

func (m *mockRepository) UpsertCart(_ context.Context, userID string, items domain.Snapshot) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = items
	m.cart = &domain.RemoteCart{UserID: userID, Items: items}
	return nil
}

func (m *mockRepository) DeleteCart(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.cart == nil {
		return ErrCartNotFound
	}
	m.cart = nil
	return nil
}

func (m *mockRepository) getCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.gets
}

type mockCache struct {
	m       sync.RWMutex
	cart    *domain.RemoteCart
	err     error
	deletes int
}

func (m *mockCache) Get(context.Context, string) (*domain.RemoteCart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, ErrCacheMiss
	}
	return m.cart, nil
}

func (m *mockCache) Set(_ context.Context, _ string, cart *domain.RemoteCart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = cart
	return m.err
}

func (m *mockCache) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	m.cart = nil
	return m.err
}

func (m *mockCache) getCart() *domain.RemoteCart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.cart
}

func TestGetSnapshot_FromRepoPopulatesCache(t *testing.T) {
	repo := &mockRepository{cart: &domain.RemoteCart{
		UserID: "u1",
		Items:  domain.Snapshot{{ID: "A", Quantity: 2}},
	}}
	cache := &mockCache{}

	sut := NewSnapshotService(repo, cache, zaptest.NewLogger(t))
	snap, err := sut.GetSnapshot(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].Quantity)
	require.Eventually(t, func() bool {
		return cache.getCart() != nil
	}, 100*time.Millisecond, 10*time.Millisecond, "cart was not set in cache")
}

func TestGetSnapshot_CacheHitSkipsRepo(t *testing.T) {
	repo := &mockRepository{}
	cache := &mockCache{cart: &domain.RemoteCart{UserID: "u1", Items: domain.Snapshot{{ID: "A", Quantity: 1}}}}

	sut := NewSnapshotService(repo, cache, zaptest.NewLogger(t))
	snap, err := sut.GetSnapshot(context.Background(), "u1")

	require.NoError(t, err)
	assert.Len(t, snap, 1)
	assert.Zero(t, repo.getCount())
}

func TestGetSnapshot_NotFoundIsEmpty(t *testing.T) {
	sut := NewSnapshotService(&mockRepository{}, &mockCache{}, zaptest.NewLogger(t))

	snap, err := sut.GetSnapshot(context.Background(), "u1")

	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestGetSnapshot_RepoError(t *testing.T) {
	cache := &mockCache{}
	sut := NewSnapshotService(&mockRepository{err: fmt.Errorf("database error")}, cache, zaptest.NewLogger(t))

	snap, err := sut.GetSnapshot(context.Background(), "u1")

	require.ErrorContains(t, err, "database error")
	assert.Nil(t, snap)
	assert.Nil(t, cache.getCart())
}

func TestGetSnapshot_CacheErrorFallsBackToRepo(t *testing.T) {
	repo := &mockRepository{cart: &domain.RemoteCart{UserID: "u1", Items: domain.Snapshot{{ID: "A", Quantity: 1}}}}
	cache := &mockCache{err: fmt.Errorf("redis down")}

	sut := NewSnapshotService(repo, cache, zaptest.NewLogger(t))
	snap, err := sut.GetSnapshot(context.Background(), "u1")

	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestSaveSnapshot_InvalidatesCache(t *testing.T) {
	repo := &mockRepository{}
	cache := &mockCache{cart: &domain.RemoteCart{UserID: "u1"}}

	sut := NewSnapshotService(repo, cache, zaptest.NewLogger(t))
	err := sut.SaveSnapshot(context.Background(), "u1", domain.Snapshot{{ID: "B", Quantity: 3}})

	require.NoError(t, err)
	assert.Equal(t, domain.Snapshot{{ID: "B", Quantity: 3}}, repo.saved)
	assert.Nil(t, cache.getCart())
	assert.Equal(t, 1, cache.deletes)
}

func TestSaveSnapshot_RepoErrorKeepsCache(t *testing.T) {
	cached := &domain.RemoteCart{UserID: "u1"}
	cache := &mockCache{cart: cached}
	sut := NewSnapshotService(&mockRepository{err: fmt.Errorf("write failed")}, cache, zaptest.NewLogger(t))

	err := sut.SaveSnapshot(context.Background(), "u1", domain.Snapshot{})

	require.Error(t, err)
	assert.Same(t, cached, cache.getCart())
}

func TestDeleteSnapshot_MissingIsNotAnError(t *testing.T) {
	cache := &mockCache{}
	sut := NewSnapshotService(&mockRepository{}, cache, zaptest.NewLogger(t))

	require.NoError(t, sut.DeleteSnapshot(context.Background(), "u1"))
	assert.Equal(t, 1, cache.deletes)
}
