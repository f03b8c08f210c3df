package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.False(t, cfg.InMemory)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 650*time.Millisecond, cfg.SyncDelay)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 5000.0, cfg.Pricing.FreeShippingThreshold)
	assert.Equal(t, 99.0, cfg.Pricing.ShippingFee)
	assert.Equal(t, 0.03, cfg.Pricing.TaxRate)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("IN_MEMORY", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SYNC_DELAY", "1s")
	t.Setenv("TAX_RATE", "0.05")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")

	cfg := Load()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.True(t, cfg.InMemory)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, time.Second, cfg.SyncDelay)
	assert.Equal(t, 0.05, cfg.Pricing.TaxRate)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SYNC_DELAY", "soon")
	t.Setenv("SHIPPING_FEE", "free")
	t.Setenv("IN_MEMORY", "maybe")

	cfg := Load()

	assert.Equal(t, 650*time.Millisecond, cfg.SyncDelay)
	assert.Equal(t, 99.0, cfg.Pricing.ShippingFee)
	assert.False(t, cfg.InMemory)
}
