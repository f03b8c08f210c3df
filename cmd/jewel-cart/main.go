package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/cartsync"
	"github.com/fjod/go_cart/jewel-cart/internal/catalog"
	"github.com/fjod/go_cart/jewel-cart/internal/config"
	h "github.com/fjod/go_cart/jewel-cart/internal/http"
	"github.com/fjod/go_cart/jewel-cart/internal/localstore"
	"github.com/fjod/go_cart/jewel-cart/internal/logger"
	"github.com/fjod/go_cart/jewel-cart/internal/orders"
	"github.com/fjod/go_cart/jewel-cart/internal/pricing"
	"github.com/fjod/go_cart/jewel-cart/internal/promo"
	"github.com/fjod/go_cart/jewel-cart/internal/rates"
	"github.com/fjod/go_cart/jewel-cart/internal/remote"
	"github.com/fjod/go_cart/jewel-cart/internal/session"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type backends struct {
	storage  localstore.Storage
	accounts *remote.SnapshotService
	rates    rates.Source
	mongoDB  *mongo.Database
	redis    *redis.Client
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx := context.Background()

	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal("failed to open catalog", zap.Error(err))
	}
	defer products.Close()
	if err := products.RunMigrations(); err != nil {
		log.Fatal("failed to migrate catalog", zap.Error(err))
	}

	var b *backends
	if cfg.InMemory {
		b = inMemoryBackends(cfg, log)
		log.Info("running with in-memory backends")
	} else {
		b, err = connectBackends(ctx, cfg, log)
		if err != nil {
			log.Fatal("failed to connect backends", zap.Error(err))
		}
		defer b.redis.Close()
		defer b.mongoDB.Client().Disconnect(ctx)
	}

	// Devices sync either to this instance's account store or to another instance.
	var syncRemote cartsync.Remote = b.accounts
	if cfg.RemoteCartURL != "" {
		syncRemote = remote.NewHTTPClient(cfg.RemoteCartURL, cfg.SyncTimeout)
		log.Info("syncing carts to remote cart service", zap.String("url", cfg.RemoteCartURL))
	}

	sessions := session.NewManager(
		b.storage,
		syncRemote,
		promo.DefaultTable,
		cartsync.NewLogObserver(log),
		session.Config{
			Sync:        cartsync.Options{Delay: cfg.SyncDelay, Timeout: cfg.SyncTimeout, Products: products},
			IdleTimeout: cfg.SessionIdleTimeout,
		},
		log,
	)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	var consumer *orders.Consumer
	if !cfg.InMemory {
		consumer = orders.NewConsumer(sessions, b.accounts, log, cfg.KafkaBrokers...)
		go consumer.Run(consumerCtx)
	}

	router := h.NewRouter(
		h.RouterConfig{RequestTimeout: cfg.RequestTimeout, MaxRequestBodySize: cfg.MaxRequestBodySize},
		h.NewCartHandler(sessions, products, b.rates, pricing.NewCalculator(cfg.Pricing), cfg.RequestTimeout, log),
		h.NewSessionHandler(sessions, cfg.RequestTimeout),
		h.NewAccountHandler(b.accounts, cfg.RequestTimeout, log),
		log,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "jewel-cart"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("jewel cart starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	stopConsumer()
	if consumer != nil {
		consumer.Close()
	}
	sessions.Close()

	log.Info("server exited")
}

func inMemoryBackends(cfg *config.Config, log *zap.Logger) *backends {
	b := &backends{
		storage:  localstore.NewMemoryStorage(),
		accounts: remote.NewSnapshotService(remote.NewMemoryRepository(), remote.NopCache{}, log),
		rates:    rates.StaticSource{},
	}
	if cfg.RatesURL != "" {
		b.rates = rates.NewHTTPSource(cfg.RatesURL, cfg.RequestTimeout)
	}
	return b
}

func connectBackends(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backends, error) {
	mongoDB, err := remote.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, err
	}
	repo := remote.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		log.Warn("failed to create cart indexes", zap.Error(err))
	}
	log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = mongoDB.Client().Disconnect(ctx)
		return nil, err
	}
	log.Info("redis ping succeeded")

	var source rates.Source = rates.StaticSource{}
	if cfg.RatesURL != "" {
		source = rates.NewCachedSource(rates.NewHTTPSource(cfg.RatesURL, cfg.RequestTimeout), redisClient, cfg.RatesCacheTTL, log)
	}

	return &backends{
		storage:  localstore.NewRedisStorage(redisClient),
		accounts: remote.NewSnapshotService(repo, remote.NewRedisCache(redisClient), log),
		rates:    source,
		mongoDB:  mongoDB,
		redis:    redisClient,
	}, nil
}
