package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/cartsync"
	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	CartPath     = "/api/v1/account/cart"
	UserIDHeader = "X-User-ID"
)

type cartPayload struct {
	Cart domain.Snapshot `json:"cart"`
}

// HTTPClient talks to a remote account cart endpoint. Client errors (4xx) are
// permanent and do not count against the circuit breaker.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[domain.Snapshot]
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: gobreaker.NewCircuitBreaker[domain.Snapshot](gobreaker.Settings{
			Name:        "remote-cart",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, cartsync.ErrPermanent)
			},
		}),
	}
}

func (c *HTTPClient) GetSnapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	return c.cb.Execute(func() (domain.Snapshot, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+CartPath, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set(UserIDHeader, userID)

		var payload cartPayload
		if err := c.do(req, &payload); err != nil {
			return nil, err
		}
		return payload.Cart, nil
	})
}

func (c *HTTPClient) SaveSnapshot(ctx context.Context, userID string, snapshot domain.Snapshot) error {
	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}
	body, err := json.Marshal(cartPayload{Cart: snapshot})
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	_, err = c.cb.Execute(func() (domain.Snapshot, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CartPath, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserIDHeader, userID)
		return nil, c.do(req, nil)
	})
	return err
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", cartsync.ErrPermanent, err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
