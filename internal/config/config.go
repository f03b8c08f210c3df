// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/pricing"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	Debug              bool

	// InMemory keeps device carts and account snapshots in process, skipping
	// Mongo, Redis and Kafka.
	InMemory bool

	MongoURI      string
	MongoDBName   string
	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string

	CatalogDBPath string

	RatesURL      string
	RatesCacheTTL time.Duration

	// RemoteCartURL points the syncer at another instance's account cart API
	// instead of the local snapshot store.
	RemoteCartURL string
	SyncDelay     time.Duration
	SyncTimeout   time.Duration

	// SessionIdleTimeout evicts device sessions not used for this long.
	SessionIdleTimeout time.Duration

	Pricing pricing.Config
}

func Load() *Config {
	defaults := pricing.DefaultConfig()
	return &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		Debug:              getBool("DEBUG", false),

		InMemory: getBool("IN_MEMORY", false),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:  getList("KAFKA_BROKERS", []string{"localhost:9092"}),

		CatalogDBPath: getEnv("CATALOG_DB_PATH", "catalog.db"),

		RatesURL:      getEnv("RATES_URL", ""),
		RatesCacheTTL: getDuration("RATES_CACHE_TTL", 5*time.Minute),

		RemoteCartURL: getEnv("REMOTE_CART_URL", ""),
		SyncDelay:     getDuration("SYNC_DELAY", 650*time.Millisecond),
		SyncTimeout:   getDuration("SYNC_TIMEOUT", 5*time.Second),

		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		Pricing: pricing.Config{
			FreeShippingThreshold: getFloat("FREE_SHIPPING_THRESHOLD", defaults.FreeShippingThreshold),
			ShippingFee:           getFloat("SHIPPING_FEE", defaults.ShippingFee),
			TaxRate:               getFloat("TAX_RATE", defaults.TaxRate),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
