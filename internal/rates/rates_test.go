package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/jewel-cart/internal/pricing"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingSource struct {
	calls atomic.Int32
	rates pricing.Rates
	err   error
}

func (c *countingSource) Rates(context.Context) (pricing.Rates, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.rates, nil
}

func TestHTTPSource_Rates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"Gold":6450.5,"silver":82}}`))
	}))
	defer srv.Close()

	got, err := NewHTTPSource(srv.URL, time.Second).Rates(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pricing.Rates{"gold": 6450.5, "silver": 82}, got)
}

func TestHTTPSource_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, time.Second).Rates(context.Background())
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestCachedSource_CachesWithinTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingSource{rates: pricing.Rates{"gold": 6000}}
	cached := NewCachedSource(next, client, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cached.Rates(ctx)
		require.NoError(t, err)
		assert.Equal(t, float64(6000), got["gold"])
	}
	assert.Equal(t, int32(1), next.calls.Load())

	mr.FastForward(2 * time.Minute)
	_, err := cached.Rates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedSource_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	next := &countingSource{rates: pricing.Rates{"silver": 80}}
	got, err := NewCachedSource(next, client, time.Minute, zaptest.NewLogger(t)).Rates(context.Background())

	require.NoError(t, err)
	assert.Equal(t, float64(80), got["silver"])
}

func TestCachedSource_PropagatesSourceError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingSource{err: errors.New("rates service down")}
	_, err := NewCachedSource(next, client, time.Minute, zaptest.NewLogger(t)).Rates(context.Background())

	assert.ErrorContains(t, err, "rates service down")
	assert.False(t, mr.Exists(cacheKey))
}

func TestStaticSource_ReturnsCopy(t *testing.T) {
	src := StaticSource{"gold": 6000}
	got, err := src.Rates(context.Background())
	require.NoError(t, err)

	got["gold"] = 1
	again, _ := src.Rates(context.Background())
	assert.Equal(t, float64(6000), again["gold"])
}
