package remote

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/jewel-cart/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository stores one cart snapshot per account.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.RemoteCart, error)
	UpsertCart(ctx context.Context, userID string, items domain.Snapshot) error
	DeleteCart(ctx context.Context, userID string) error
}
