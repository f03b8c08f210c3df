package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/cartsync"
	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/fjod/go_cart/jewel-cart/internal/localstore"
	"github.com/fjod/go_cart/jewel-cart/internal/promo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryRemote struct {
	m      sync.Mutex
	carts  map[string]domain.Snapshot
	pushes int
}

func (r *memoryRemote) GetSnapshot(_ context.Context, userID string) (domain.Snapshot, error) {
	r.m.Lock()
	defer r.m.Unlock()
	return r.carts[userID], nil
}

func (r *memoryRemote) SaveSnapshot(_ context.Context, userID string, snap domain.Snapshot) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.pushes++
	r.carts[userID] = snap
	return nil
}

func (r *memoryRemote) pushCount() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.pushes
}

func newTestManager(t *testing.T, storage localstore.Storage, delay time.Duration) (*Manager, *memoryRemote) {
	remote := &memoryRemote{carts: make(map[string]domain.Snapshot)}
	m := NewManager(storage, remote, promo.DefaultTable, nil, Config{Sync: cartsync.Options{Delay: delay}}, zaptest.NewLogger(t))
	return m, remote
}

func (r *memoryRemote) cart(userID string) (domain.Snapshot, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	snap, ok := r.carts[userID]
	return snap, ok
}

func (r *memoryRemote) delete(userID string) {
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.carts, userID)
}

func TestGet_ReturnsSameSessionPerDevice(t *testing.T) {
	m, _ := newTestManager(t, localstore.NewMemoryStorage(), time.Hour)
	defer m.Close()
	ctx := context.Background()

	a, err := m.Get(ctx, "d1")
	require.NoError(t, err)
	b, err := m.Get(ctx, "d1")
	require.NoError(t, err)
	c, err := m.Get(ctx, "d2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, m.Len())
}

func TestGet_LoadsFromDeviceStorage(t *testing.T) {
	storage := localstore.NewMemoryStorage()
	ctx := context.Background()

	first, _ := newTestManager(t, storage, time.Hour)
	s, err := first.Get(ctx, "d1")
	require.NoError(t, err)
	s.Store.AddToCart(ctx, domain.Product{ID: "A", Price: 100})
	first.Close()

	second, _ := newTestManager(t, storage, time.Hour)
	defer second.Close()
	s, err = second.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, s.Store.Cart().Items, 1)
}

func TestClearDevice(t *testing.T) {
	m, _ := newTestManager(t, localstore.NewMemoryStorage(), time.Hour)
	defer m.Close()
	ctx := context.Background()
	s, _ := m.Get(ctx, "d1")
	s.Store.AddToCart(ctx, domain.Product{ID: "A", Price: 100})

	require.NoError(t, m.ClearDevice(ctx, "d1"))
	assert.True(t, s.Store.Cart().IsEmpty())
}

func TestClearDevice_UnseenDeviceOpensNoSession(t *testing.T) {
	storage := localstore.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, storage.Set(ctx, "d1", []byte(`{"state":{"cart":[{"id":"A","price":100,"quantity":1}]}}`)))
	m, _ := newTestManager(t, storage, time.Hour)
	defer m.Close()

	require.NoError(t, m.ClearDevice(ctx, "d1"))
	require.NoError(t, m.ClearDevice(ctx, "never-seen"))

	assert.Zero(t, m.Len())
	_, err := storage.Get(ctx, "d1")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestClearDevice_DoesNotRecreateDeletedAccountCart(t *testing.T) {
	m, remote := newTestManager(t, localstore.NewMemoryStorage(), 20*time.Millisecond)
	defer m.Close()
	ctx := context.Background()
	s, _ := m.Get(ctx, "d1")
	s.Syncer.SignIn(ctx, "u1")
	s.Store.AddToCart(ctx, domain.Product{ID: "A", Price: 100})
	require.Eventually(t, func() bool { return remote.pushCount() == 1 }, time.Second, 5*time.Millisecond)

	// order placed: clear the device, then delete the account cart
	require.NoError(t, m.ClearDevice(ctx, "d1"))
	remote.delete("u1")

	time.Sleep(80 * time.Millisecond)
	_, ok := remote.cart("u1")
	assert.False(t, ok, "an empty push must not recreate the deleted account cart")
	assert.Equal(t, 1, remote.pushCount())

	// later edits sync again
	s.Store.AddToCart(ctx, domain.Product{ID: "B", Price: 50})
	require.Eventually(t, func() bool { return remote.pushCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEvictIdle(t *testing.T) {
	storage := localstore.NewMemoryStorage()
	remote := &memoryRemote{carts: make(map[string]domain.Snapshot)}
	m := NewManager(storage, remote, promo.DefaultTable, nil,
		Config{Sync: cartsync.Options{Delay: time.Hour}, IdleTimeout: time.Minute}, zaptest.NewLogger(t))
	defer m.Close()
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	idle, err := m.Get(ctx, "idle")
	require.NoError(t, err)
	idle.Syncer.SignIn(ctx, "u1")
	idle.Store.AddToCart(ctx, domain.Product{ID: "A", Price: 100})
	_, err = m.Get(ctx, "active")
	require.NoError(t, err)

	clock = clock.Add(45 * time.Second)
	_, err = m.Get(ctx, "active")
	require.NoError(t, err)
	clock = clock.Add(30 * time.Second)

	assert.Equal(t, 1, m.evictIdle())
	assert.Equal(t, 1, m.Len())
	_, ok := m.Peek("idle")
	assert.False(t, ok)
	_, ok = m.Peek("active")
	assert.True(t, ok)
	assert.Equal(t, 1, remote.pushCount(), "evicted sessions flush their pending push")

	// the device cart survives eviction
	again, err := m.Get(ctx, "idle")
	require.NoError(t, err)
	assert.NotSame(t, idle, again)
	assert.Len(t, again.Store.Cart().Items, 1)
}

func TestCleanupLoop_EvictsInBackground(t *testing.T) {
	storage := localstore.NewMemoryStorage()
	remote := &memoryRemote{carts: make(map[string]domain.Snapshot)}
	m := NewManager(storage, remote, promo.DefaultTable, nil,
		Config{IdleTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t))
	defer m.Close()

	for i := 0; i < 100; i++ {
		_, err := m.Get(context.Background(), fmt.Sprintf("device-%d", i))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestClose_IsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, localstore.NewMemoryStorage(), time.Hour)
	m.Close()
	m.Close()
}

func TestClose_FlushesPendingPushes(t *testing.T) {
	m, remote := newTestManager(t, localstore.NewMemoryStorage(), time.Hour)
	ctx := context.Background()

	for _, device := range []string{"d1", "d2"} {
		s, err := m.Get(ctx, device)
		require.NoError(t, err)
		s.Syncer.SignIn(ctx, "user-"+device)
		s.Store.AddToCart(ctx, domain.Product{ID: "A", Price: 100})
	}

	m.Close()

	assert.Equal(t, 2, remote.pushCount())
	_, err := m.Get(ctx, "d3")
	assert.ErrorIs(t, err, ErrClosed)
}
