// Package rates fetches current per-gram metal rates for weight-priced items.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/pricing"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Source interface {
	Rates(ctx context.Context) (pricing.Rates, error)
}

type StaticSource pricing.Rates

func (s StaticSource) Rates(context.Context) (pricing.Rates, error) {
	out := make(pricing.Rates, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

type HTTPSource struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[pricing.Rates]
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: gobreaker.NewCircuitBreaker[pricing.Rates](gobreaker.Settings{
			Name:        "metal-rates",
			MaxRequests: 1,
			Timeout:     15 * time.Second,
		}),
	}
}

func (h *HTTPSource) Rates(ctx context.Context) (pricing.Rates, error) {
	return h.cb.Execute(func() (pricing.Rates, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
		if err != nil {
			return nil, fmt.Errorf("build rates request: %w", err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch rates: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
		}

		var body ratesResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode rates: %w", err)
		}

		out := make(pricing.Rates, len(body.Rates))
		for material, rate := range body.Rates {
			out[strings.ToLower(material)] = rate
		}
		return out, nil
	})
}

const cacheKey = "rates:current"

// CachedSource keeps the last rates in Redis for ttl. Redis failures fall through
// to the wrapped source.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	sfg    singleflight.Group
}

func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedSource) Rates(ctx context.Context) (pricing.Rates, error) {
	v, err, _ := c.sfg.Do(cacheKey, func() (interface{}, error) {
		data, err := c.client.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var cached pricing.Rates
			if errUnmarshal := json.Unmarshal(data, &cached); errUnmarshal == nil {
				return cached, nil
			}
			c.logger.Warn("discarding unreadable cached rates")
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("rates cache get error", zap.Error(err))
		}

		fresh, err := c.next.Rates(ctx)
		if err != nil {
			return nil, err
		}

		if data, errMarshal := json.Marshal(fresh); errMarshal == nil {
			if errSet := c.client.Set(ctx, cacheKey, data, c.ttl).Err(); errSet != nil {
				c.logger.Warn("rates cache set error", zap.Error(errSet))
			}
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(pricing.Rates), nil
}
