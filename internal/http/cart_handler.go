package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/catalog"
	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/fjod/go_cart/jewel-cart/internal/logger"
	"github.com/fjod/go_cart/jewel-cart/internal/pricing"
	"github.com/fjod/go_cart/jewel-cart/internal/rates"
	"github.com/fjod/go_cart/jewel-cart/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Sessions interface {
	Get(ctx context.Context, deviceID string) (*session.Session, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

type CartHandler struct {
	sessions   Sessions
	catalog    Catalog
	rates      rates.Source
	calculator *pricing.Calculator
	timeout    time.Duration
	logger     *zap.Logger
}

func NewCartHandler(
	sessions Sessions,
	catalog Catalog,
	rateSource rates.Source,
	calculator *pricing.Calculator,
	timeout time.Duration,
	logger *zap.Logger,
) *CartHandler {
	return &CartHandler{
		sessions:   sessions,
		catalog:    catalog,
		rates:      rateSource,
		calculator: calculator,
		timeout:    timeout,
		logger:     logger,
	}
}

type CartResponse struct {
	DeviceID   string            `json:"deviceId"`
	Items      []domain.CartItem `json:"items"`
	PromoCode  string            `json:"promoCode"`
	Discount   float64           `json:"discount"`
	ItemCount  int               `json:"itemCount"`
	TotalPrice float64           `json:"totalPrice"`
}

// AddItemRequestDTO carries either a full product or a catalog id. Customization
// applies in both cases.
type AddItemRequestDTO struct {
	Product       *domain.Product       `json:"product,omitempty"`
	ProductID     string                `json:"product_id,omitempty"`
	Customization *domain.Customization `json:"customization,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type PromoRequestDTO struct {
	Code string `json:"code"`
}

type TotalsResponse struct {
	Cart   CartResponse   `json:"cart"`
	Totals pricing.Totals `json:"totals"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	if deviceIssued(r.Context()) {
		respondJSON(w, http.StatusOK, newCartResponse(getDeviceID(r.Context()), domain.Cart{}))
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(s.Store.DeviceID(), s.Store.Cart()))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	var product domain.Product
	switch {
	case req.Product != nil:
		product = *req.Product
	case strings.TrimSpace(req.ProductID) != "":
		p, err := h.catalog.GetProduct(ctx, strings.TrimSpace(req.ProductID))
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "product_not_found", "product not found")
			return
		}
		if err != nil {
			logger.FromContext(ctx, h.logger).Error("catalog lookup failed", zap.String("product_id", req.ProductID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		product = p
	default:
		respondError(w, http.StatusBadRequest, "invalid_product", "product or product_id is required")
		return
	}

	if strings.TrimSpace(product.ID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_product", "product id is required")
		return
	}
	if product.Price < 0 || product.Weight < 0 {
		respondError(w, http.StatusBadRequest, "invalid_product", "price and weight must not be negative")
		return
	}
	if req.Customization != nil {
		product.Customization = req.Customization
	}

	c := s.Store.AddToCart(ctx, product)
	respondJSON(w, http.StatusCreated, newCartResponse(s.Store.DeviceID(), c))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.withKey(w, r, func(ctx context.Context, s *session.Session, key string) domain.Cart {
		return s.Store.RemoveFromCart(ctx, key)
	})
}

func (h *CartHandler) IncreaseQuantity(w http.ResponseWriter, r *http.Request) {
	h.withKey(w, r, func(ctx context.Context, s *session.Session, key string) domain.Cart {
		return s.Store.IncreaseQuantity(ctx, key)
	})
}

func (h *CartHandler) DecreaseQuantity(w http.ResponseWriter, r *http.Request) {
	h.withKey(w, r, func(ctx context.Context, s *session.Session, key string) domain.Cart {
		return s.Store.DecreaseQuantity(ctx, key)
	})
}

// UpdateQuantity sets an explicit quantity. Lines are removed through RemoveItem, not
// by setting zero.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil || *req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1; use DELETE to remove an item")
		return
	}
	h.withKey(w, r, func(ctx context.Context, s *session.Session, key string) domain.Cart {
		return s.Store.UpdateQuantity(ctx, key, *req.Quantity)
	})
}

func (h *CartHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req PromoRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	c := s.Store.ApplyPromo(ctx, req.Code)
	respondJSON(w, http.StatusOK, newCartResponse(s.Store.DeviceID(), c))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	c := s.Store.ClearCart(ctx)
	respondJSON(w, http.StatusOK, newCartResponse(s.Store.DeviceID(), c))
}

// GetTotals prices the cart at current rates. If rates cannot be fetched, weight-priced
// lines are reported as pending rather than failing the request.
func (h *CartHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deviceID := getDeviceID(ctx)
	var c domain.Cart
	if !deviceIssued(ctx) {
		s, ok := h.session(w, r)
		if !ok {
			return
		}
		c = s.Store.Cart()
	}

	current, err := h.rates.Rates(ctx)
	if err != nil {
		logger.FromContext(ctx, h.logger).Warn("metal rates unavailable", zap.Error(err))
		current = pricing.Rates{}
	}

	respondJSON(w, http.StatusOK, TotalsResponse{
		Cart:   newCartResponse(deviceID, c),
		Totals: h.calculator.Calculate(c.Items, c.Discount, current),
	})
}

func (h *CartHandler) withKey(w http.ResponseWriter, r *http.Request, fn func(context.Context, *session.Session, string) domain.Cart) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || strings.TrimSpace(key) == "" {
		respondError(w, http.StatusBadRequest, "invalid_key", "item key is required")
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(s.Store.DeviceID(), fn(ctx, s, key)))
}

func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	return lookupSession(w, r, h.sessions)
}

func lookupSession(w http.ResponseWriter, r *http.Request, sessions Sessions) (*session.Session, bool) {
	deviceID := getDeviceID(r.Context())
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, "missing_device_id", "missing device id")
		return nil, false
	}
	s, err := sessions.Get(r.Context(), deviceID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "shutting down")
		return nil, false
	}
	return s, true
}

func newCartResponse(deviceID string, c domain.Cart) CartResponse {
	items := c.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{
		DeviceID:   deviceID,
		Items:      items,
		PromoCode:  c.PromoCode,
		Discount:   c.Discount,
		ItemCount:  c.ItemCount(),
		TotalPrice: c.FixedTotal(),
	}
}
