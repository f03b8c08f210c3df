package cartsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/cart"
	"github.com/fjod/go_cart/jewel-cart/internal/catalog"
	"github.com/fjod/go_cart/jewel-cart/internal/debounce"
	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultDelay   = 650 * time.Millisecond
	DefaultTimeout = 5 * time.Second
)

type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Remote is the per-account cart snapshot store.
type Remote interface {
	GetSnapshot(ctx context.Context, userID string) (domain.Snapshot, error)
	SaveSnapshot(ctx context.Context, userID string, snapshot domain.Snapshot) error
}

// ProductLookup resolves catalog products. Snapshots carry only id, name, price and
// image, so lines restored from the account are rebuilt from the catalog.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

type Options struct {
	// Delay is the quiet period after the last edit before a push.
	Delay time.Duration
	// Timeout bounds a single push.
	Timeout time.Duration
	// Products is optional. Without it restored lines keep their snapshot price.
	Products ProductLookup
}

// Syncer keeps one device's cart eventually consistent with the signed-in account's
// remote snapshot.
type Syncer struct {
	store    *cart.Store
	remote   Remote
	products ProductLookup
	observer Observer
	logger   *zap.Logger
	timeout  time.Duration

	debouncer   *debounce.Debouncer
	unsubscribe func()

	mu     sync.Mutex
	state  State
	userID string
	// reconciled is false while signed in without having read the account's
	// snapshot. No pushes happen until a later SignIn reconciles.
	reconciled bool
}

func New(store *cart.Store, remote Remote, observer Observer, logger *zap.Logger, opts Options) *Syncer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	s := &Syncer{
		store:    store,
		remote:   remote,
		products: opts.Products,
		observer: observer,
		logger:   logger.With(zap.String("device_id", store.DeviceID())),
		timeout:  opts.Timeout,
	}
	s.debouncer = debounce.New(opts.Delay, s.push)
	s.unsubscribe = store.Subscribe(s.onChange)
	return s
}

func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Reconciled reports whether the signed-in device has merged with the account's
// snapshot and is pushing edits.
func (s *Syncer) Reconciled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Authenticated && s.reconciled
}

// SignIn reconciles the device cart with the account's remote snapshot. A non-empty
// remote snapshot replaces local state; otherwise a non-empty local cart is uploaded.
// The device snapshot is then claimed by the account and removed from device storage.
// If the snapshot cannot be read the device is signed in but stays unreconciled, and
// signing in again as the same user retries.
func (s *Syncer) SignIn(ctx context.Context, userID string) Result {
	s.mu.Lock()
	if s.state == Authenticated && s.userID == userID && s.reconciled {
		s.mu.Unlock()
		return Result{Op: OpReconcile, Kind: KindOK, UserID: userID, Items: len(s.store.Cart().Items), Winner: WinnerNone}
	}
	if s.state != Unauthenticated {
		s.signOutLocked()
	}
	s.state = Authenticating
	s.userID = userID
	s.mu.Unlock()

	remoteSnap, err := s.remote.GetSnapshot(ctx, userID)
	if err != nil {
		// Remote state is unknown: keep the local cart and do not overwrite the account.
		s.finishSignIn(userID, false)
		return s.report(Result{Op: OpFetch, Kind: Classify(err), UserID: userID, Err: err})
	}

	local := s.store.Cart()
	winner := WinnerNone
	switch {
	case len(remoteSnap) > 0:
		winner = WinnerRemote
		s.store.SetCart(ctx, s.restore(ctx, remoteSnap))
	case !local.IsEmpty():
		winner = WinnerLocal
	}

	if errForget := s.store.ForgetPersisted(ctx); errForget != nil {
		s.logger.Warn("clear claimed device cart", zap.Error(errForget))
	}

	if !s.finishSignIn(userID, true) {
		return s.report(Result{Op: OpReconcile, Kind: KindOK, UserID: userID, Winner: WinnerNone})
	}
	if winner == WinnerLocal {
		s.debouncer.Schedule()
	}

	return s.report(Result{
		Op:     OpReconcile,
		Kind:   KindOK,
		UserID: userID,
		Items:  len(s.store.Cart().Items),
		Winner: winner,
	})
}

// SignOut drops any pending push. Neither device storage nor the remote snapshot
// is written.
func (s *Syncer) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOutLocked()
}

// Close pushes a pending change, if any, and detaches from the store.
func (s *Syncer) Close() {
	s.unsubscribe()
	s.debouncer.Stop()
}

func (s *Syncer) signOutLocked() {
	s.debouncer.Cancel()
	s.state = Unauthenticated
	s.userID = ""
	s.reconciled = false
}

// DropPending discards a scheduled push and waits for one in flight to return.
func (s *Syncer) DropPending() {
	s.debouncer.Discard()
}

// finishSignIn completes the transition unless a sign-out or another sign-in
// happened while the remote was being read.
func (s *Syncer) finishSignIn(userID string, reconciled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticating || s.userID != userID {
		return false
	}
	s.state = Authenticated
	s.reconciled = reconciled
	return true
}

// restore rebuilds line items from an account snapshot. Catalog products supply the
// price type, weight and material the snapshot drops. Lines the catalog cannot
// resolve keep the snapshot price, or are left unpriced when it has none.
func (s *Syncer) restore(ctx context.Context, snap domain.Snapshot) []domain.CartItem {
	items := domain.ItemsFromSnapshot(snap)
	if s.products == nil {
		return items
	}
	for i, entry := range snap {
		p, err := s.products.GetProduct(ctx, entry.ID)
		if err != nil {
			if !errors.Is(err, catalog.ErrProductNotFound) {
				s.logger.Warn("catalog lookup for restored line", zap.String("product_id", entry.ID), zap.Error(err))
			}
			continue
		}
		if len(p.Images) == 0 && entry.Image != "" {
			p.Images = []string{entry.Image}
		}
		item := domain.NewCartItem(p)
		item.Quantity = entry.Quantity
		items[i] = item
	}
	return items
}

func (s *Syncer) onChange(domain.Cart) {
	if s.Reconciled() {
		s.debouncer.Schedule()
	}
}

// push uploads the latest cart state; failures are reported and dropped.
func (s *Syncer) push() {
	s.mu.Lock()
	state, userID, reconciled := s.state, s.userID, s.reconciled
	s.mu.Unlock()
	if state != Authenticated || !reconciled {
		return
	}

	snapshot := s.store.Cart().Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.remote.SaveSnapshot(ctx, userID, snapshot)
	s.report(Result{Op: OpPush, Kind: Classify(err), UserID: userID, Items: len(snapshot), Err: err})
}

func (s *Syncer) report(r Result) Result {
	if s.observer != nil {
		s.observer.Observe(r)
	}
	return r
}
