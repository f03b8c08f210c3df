package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/fjod/go_cart/jewel-cart/internal/localstore"
	"github.com/fjod/go_cart/jewel-cart/internal/promo"
	"go.uber.org/zap"
)

// envelope is the persisted shape: {"state":{"cart":[...]}}.
type envelope struct {
	State persistedState `json:"state"`
}

type persistedState struct {
	Cart      []domain.CartItem `json:"cart"`
	PromoCode string            `json:"promoCode,omitempty"`
	Discount  float64           `json:"discount,omitempty"`
}

type Listener func(domain.Cart)

// Store is the single source of truth for one device's cart. Mutations never fail;
// every mutation is persisted to device storage and reported to listeners.
type Store struct {
	mu        sync.Mutex
	deviceID  string
	items     []domain.CartItem
	promoCode string
	discount  float64

	storage  localstore.Storage
	resolver promo.Resolver
	logger   *zap.Logger

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

func NewStore(deviceID string, storage localstore.Storage, resolver promo.Resolver, logger *zap.Logger) *Store {
	return &Store{
		deviceID:  deviceID,
		storage:   storage,
		resolver:  resolver,
		logger:    logger.With(zap.String("device_id", deviceID)),
		listeners: make(map[int]Listener),
	}
}

func (s *Store) DeviceID() string {
	return s.deviceID
}

// Load replaces in-memory state with the device's stored envelope. A missing or
// unreadable envelope leaves an empty cart.
func (s *Store) Load(ctx context.Context) {
	data, err := s.storage.Get(ctx, s.deviceID)
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			s.logger.Warn("load cart from device storage", zap.Error(err))
		}
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("discarding corrupt cart envelope", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.items = normalizeItems(env.State.Cart)
	s.promoCode = env.State.PromoCode
	s.discount = s.resolver.Resolve(env.State.PromoCode)
	s.mu.Unlock()
}

func (s *Store) AddToCart(ctx context.Context, p domain.Product) domain.Cart {
	item := domain.NewCartItem(p)
	return s.mutate(ctx, func() {
		if i := s.indexOf(item.Key); i >= 0 {
			s.items[i].Quantity++
			return
		}
		s.items = append(s.items, item)
	})
}

func (s *Store) RemoveFromCart(ctx context.Context, key string) domain.Cart {
	return s.mutate(ctx, func() {
		if i := s.indexOf(key); i >= 0 {
			s.removeAt(i)
		}
	})
}

func (s *Store) IncreaseQuantity(ctx context.Context, key string) domain.Cart {
	return s.mutate(ctx, func() {
		if i := s.indexOf(key); i >= 0 {
			s.items[i].Quantity++
		}
	})
}

// DecreaseQuantity removes the line instead of letting its quantity reach zero.
func (s *Store) DecreaseQuantity(ctx context.Context, key string) domain.Cart {
	return s.mutate(ctx, func() {
		i := s.indexOf(key)
		if i < 0 {
			return
		}
		if s.items[i].Quantity <= 1 {
			s.removeAt(i)
			return
		}
		s.items[i].Quantity--
	})
}

// UpdateQuantity sets an explicit quantity. Values below 1 are ignored; callers
// remove lines through RemoveFromCart.
func (s *Store) UpdateQuantity(ctx context.Context, key string, quantity int) domain.Cart {
	if quantity < 1 {
		return s.Cart()
	}
	return s.mutate(ctx, func() {
		if i := s.indexOf(key); i >= 0 {
			s.items[i].Quantity = quantity
		}
	})
}

// ApplyPromo keeps the code as typed and resolves its discount; unknown codes
// reset the discount to zero.
func (s *Store) ApplyPromo(ctx context.Context, code string) domain.Cart {
	return s.mutate(ctx, func() {
		s.promoCode = code
		s.discount = s.resolver.Resolve(code)
	})
}

func (s *Store) ClearCart(ctx context.Context) domain.Cart {
	return s.mutate(ctx, func() {
		s.items = nil
		s.promoCode = ""
		s.discount = 0
	})
}

// SetCart replaces all line items. Lines sharing a key are merged.
func (s *Store) SetCart(ctx context.Context, items []domain.CartItem) domain.Cart {
	return s.mutate(ctx, func() {
		s.items = normalizeItems(items)
	})
}

func (s *Store) Cart() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// TotalPrice sums price*quantity over fixed-price lines.
func (s *Store) TotalPrice() float64 {
	return s.Cart().FixedTotal()
}

func (s *Store) ItemCount() int {
	return s.Cart().ItemCount()
}

// ForgetPersisted deletes the device envelope while keeping in-memory state.
// The next mutation persists again.
func (s *Store) ForgetPersisted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Delete(ctx, s.deviceID)
}

// Subscribe registers fn to be called with the new cart after every mutation.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// mutate applies fn and persists under the lock so device storage never sees
// writes out of order.
func (s *Store) mutate(ctx context.Context, fn func()) domain.Cart {
	s.mu.Lock()
	fn()
	snapshot := s.snapshotLocked()
	s.persistLocked(ctx, snapshot)
	s.mu.Unlock()

	s.notify(snapshot)
	return snapshot
}

func (s *Store) persistLocked(ctx context.Context, c domain.Cart) {
	data, err := json.Marshal(envelope{State: persistedState{
		Cart:      c.Items,
		PromoCode: c.PromoCode,
		Discount:  c.Discount,
	}})
	if err != nil {
		s.logger.Error("marshal cart envelope", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, s.deviceID, data); err != nil {
		s.logger.Warn("persist cart to device storage", zap.Error(err))
	}
}

func (s *Store) notify(c domain.Cart) {
	s.lmu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.lmu.RUnlock()

	for _, l := range listeners {
		l(c)
	}
}

func (s *Store) snapshotLocked() domain.Cart {
	items := make([]domain.CartItem, len(s.items))
	copy(items, s.items)
	return domain.Cart{
		Items:     items,
		PromoCode: s.promoCode,
		Discount:  s.discount,
	}
}

func (s *Store) indexOf(key string) int {
	for i := range s.items {
		if s.items[i].Key == key {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}

func normalizeItems(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		if item.Key == "" {
			item.Key = domain.CartKey(item.ID, item.Customization)
		}
		if i, ok := index[item.Key]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.Key] = len(out)
		out = append(out, item)
	}
	return out
}
