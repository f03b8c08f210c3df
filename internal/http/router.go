package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func NewRouter(cfg RouterConfig, cart *CartHandler, sessions *SessionHandler, accounts *AccountHandler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	r.Use(middleware.Compress(5))
	r.Use(UserMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(DeviceMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cart.GetCart)
				r.Delete("/", cart.ClearCart)
				r.Get("/totals", cart.GetTotals)
				r.Post("/promo", cart.ApplyPromo)
				r.Post("/items", cart.AddItem)
				r.Put("/items/{key}", cart.UpdateQuantity)
				r.Delete("/items/{key}", cart.RemoveItem)
				r.Post("/items/{key}/increase", cart.IncreaseQuantity)
				r.Post("/items/{key}/decrease", cart.DecreaseQuantity)
			})

			r.Route("/session", func(r chi.Router) {
				r.Get("/", sessions.GetSession)
				r.Post("/signin", sessions.SignIn)
				r.Post("/signout", sessions.SignOut)
			})
		})

		r.Route("/account/cart", func(r chi.Router) {
			r.Get("/", accounts.GetCart)
			r.Post("/", accounts.SaveCart)
			r.Delete("/", accounts.DeleteCart)
		})
	})

	return r
}
