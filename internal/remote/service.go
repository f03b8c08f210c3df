package remote

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SnapshotService serves account snapshots from Redis, falling back to the
// repository. It satisfies cartsync.Remote.
type SnapshotService struct {
	repo   CartRepository
	cache  CartCache
	logger *zap.Logger
	sfg    singleflight.Group // collapses concurrent misses for one account
}

func NewSnapshotService(repo CartRepository, cache CartCache, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// GetCart returns the account's stored cart, or an empty one if none exists.
func (s *SnapshotService) GetCart(ctx context.Context, userID string) (*domain.RemoteCart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache get error", zap.String("user_id", userID), zap.Error(err))
		}

		cart, errGet := s.repo.GetCart(ctx, userID)
		if errors.Is(errGet, ErrCartNotFound) {
			now := time.Now()
			return &domain.RemoteCart{UserID: userID, Items: domain.Snapshot{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(ctx, userID, cart); errSet != nil {
				s.logger.Warn("cache set error", zap.String("user_id", userID), zap.Error(errSet))
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.RemoteCart), nil
}

func (s *SnapshotService) GetSnapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cart.Items, nil
}

func (s *SnapshotService) SaveSnapshot(ctx context.Context, userID string, snapshot domain.Snapshot) error {
	if err := s.repo.UpsertCart(ctx, userID, snapshot); err != nil {
		s.logger.Error("repo upsert cart error", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

// DeleteSnapshot removes the account's cart. Deleting a missing cart is not an error.
func (s *SnapshotService) DeleteSnapshot(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		s.logger.Error("repo delete cart error", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *SnapshotService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}
