package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/fjod/go_cart/jewel-cart/internal/logger"
	"go.uber.org/zap"
)

// AccountCarts is the per-account snapshot store served to other instances.
type AccountCarts interface {
	GetSnapshot(ctx context.Context, userID string) (domain.Snapshot, error)
	SaveSnapshot(ctx context.Context, userID string, snapshot domain.Snapshot) error
	DeleteSnapshot(ctx context.Context, userID string) error
}

type AccountHandler struct {
	accounts AccountCarts
	timeout  time.Duration
	logger   *zap.Logger
}

func NewAccountHandler(accounts AccountCarts, timeout time.Duration, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, timeout: timeout, logger: logger}
}

type AccountCartDTO struct {
	Cart domain.Snapshot `json:"cart"`
}

func (h *AccountHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	snap, err := h.accounts.GetSnapshot(ctx, userID)
	if err != nil {
		h.internalError(ctx, w, "get account cart", userID, err)
		return
	}
	if snap == nil {
		snap = domain.Snapshot{}
	}
	respondJSON(w, http.StatusOK, AccountCartDTO{Cart: snap})
}

func (h *AccountHandler) SaveCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req AccountCartDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, item := range req.Cart {
		if item.ID == "" || item.Quantity < 1 {
			respondError(w, http.StatusBadRequest, "invalid_cart", "every item needs an id and a positive quantity")
			return
		}
	}
	if req.Cart == nil {
		req.Cart = domain.Snapshot{}
	}

	if err := h.accounts.SaveSnapshot(ctx, userID, req.Cart); err != nil {
		h.internalError(ctx, w, "save account cart", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.accounts.DeleteSnapshot(ctx, userID); err != nil {
		h.internalError(ctx, w, "delete account cart", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) internalError(ctx context.Context, w http.ResponseWriter, msg, userID string, err error) {
	logger.FromContext(ctx, h.logger).Error(msg, zap.String("user_id", userID), zap.Error(err))
	respondError(w, http.StatusServiceUnavailable, "service_unavailable", "account cart store unavailable")
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return "", false
	}
	return userID, true
}
