// Package session owns the cart store and sync state of every device the service has seen.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/cart"
	"github.com/fjod/go_cart/jewel-cart/internal/cartsync"
	"github.com/fjod/go_cart/jewel-cart/internal/localstore"
	"github.com/fjod/go_cart/jewel-cart/internal/promo"
	"go.uber.org/zap"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
	CleanupInterval    = 30 * time.Second
)

var ErrClosed = errors.New("session manager closed")

type Config struct {
	Sync cartsync.Options
	// IdleTimeout evicts sessions unused for this long. Zero keeps them until Close.
	// An evicted device keeps its cart in device storage but is signed out.
	IdleTimeout time.Duration
}

type Session struct {
	Store  *cart.Store
	Syncer *cartsync.Syncer

	lastAccess time.Time // guarded by Manager.mu
}

type Manager struct {
	storage  localstore.Storage
	remote   cartsync.Remote
	resolver promo.Resolver
	observer cartsync.Observer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewManager(
	storage localstore.Storage,
	remote cartsync.Remote,
	resolver promo.Resolver,
	observer cartsync.Observer,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	m := &Manager{
		storage:     storage,
		remote:      remote,
		resolver:    resolver,
		observer:    observer,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
	}

	if cfg.IdleTimeout > 0 {
		interval := CleanupInterval
		if cfg.IdleTimeout < interval {
			interval = cfg.IdleTimeout
		}
		m.wg.Add(1)
		go m.cleanupLoop(interval)
	}

	return m
}

// Get returns the device's session, loading its cart from device storage the first
// time the device is seen.
func (m *Manager) Get(ctx context.Context, deviceID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[deviceID]; ok {
		s.lastAccess = m.now()
		return s, nil
	}

	store := cart.NewStore(deviceID, m.storage, m.resolver, m.logger)
	store.Load(ctx)
	s := &Session{
		Store:      store,
		Syncer:     cartsync.New(store, m.remote, m.observer, m.logger, m.cfg.Sync),
		lastAccess: m.now(),
	}
	m.sessions[deviceID] = s
	return s, nil
}

// Peek returns the device's session only if it is already open.
func (m *Manager) Peek(deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	return s, ok
}

// ClearDevice empties the device's cart, e.g. after an order was placed. A signed-in
// session does not push the empty cart; the account snapshot is the caller's to delete.
// Devices without an open session only have their stored cart removed.
func (m *Manager) ClearDevice(ctx context.Context, deviceID string) error {
	s, ok := m.Peek(deviceID)
	if !ok {
		if err := m.storage.Delete(ctx, deviceID); err != nil && !errors.Is(err, localstore.ErrNotFound) {
			return fmt.Errorf("failed to clear stored cart for %s: %w", deviceID, err)
		}
		return nil
	}
	s.Store.ClearCart(ctx)
	s.Syncer.DropPending()
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops eviction and flushes pending pushes of every session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stopCleanup)
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.wg.Wait()
	closeAll(sessions)
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCleanup:
			return
		}
	}
}

// evictIdle drops sessions idle for longer than the configured timeout after
// flushing their pending pushes.
func (m *Manager) evictIdle() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for deviceID, s := range m.sessions {
		if s.lastAccess.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, deviceID)
		}
	}
	m.mu.Unlock()

	closeAll(idle)
	if len(idle) > 0 {
		m.logger.Debug("evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

func closeAll(sessions []*Session) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Syncer.Close()
		}(s)
	}
	wg.Wait()
}
