package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/eventhub-checkout/internal/config"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	"github.com/kirinyoku/eventhub-checkout/internal/postgres"
	"github.com/kirinyoku/eventhub-checkout/internal/redis"
	postgresrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/redis"
	"github.com/kirinyoku/eventhub-checkout/internal/service"
	"github.com/kirinyoku/eventhub-checkout/internal/service/auth"
	"github.com/kirinyoku/eventhub-checkout/internal/service/catalog"
	"github.com/kirinyoku/eventhub-checkout/internal/service/checkout"
	httpgin "github.com/kirinyoku/eventhub-checkout/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	pubsub     *redisrepo.EventsPubSub
	rdb        *goredis.Client
	pool       *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	var (
		pool  *pgxpool.Pool
		store *postgresrepo.Store
	)
	if cfg.Postgres.Enabled() {
		pool, err = postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN()})
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}

		store = postgresrepo.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
	} else {
		logger.Warn("postgres not configured, receipts are disabled")
	}

	pubsub := redisrepo.NewEventsPubSub(rdb)

	services := service.NewServices(service.Deps{
		EventHub: eventhub.New(eventhub.Config{
			BaseURL: cfg.EventHub.BaseURL,
			Timeout: cfg.EventHub.Timeout,
		}),
		Store:     store,
		Cache:     redisrepo.New(rdb),
		PubSub:    pubsub,
		Sessions:  redisrepo.NewSessionStore(rdb),
		Checkouts: redisrepo.NewCheckoutStore(rdb, cfg.Checkout.TTL),
		Locks:     redisrepo.NewIdempotencyStore(rdb, cfg.Checkout.IdempotencyTTL),
		PromoLimiter: redisrepo.NewSlidingWindowLimiter(
			rdb,
			redisrepo.KeyRateLimitPrefix("promo"),
			cfg.Checkout.PromoRateLimit,
			cfg.Checkout.PromoRateWin,
		),
	}, logger, service.Config{
		Auth: auth.Config{
			SessionTTL: cfg.Auth.SessionTTL,
			JWTSecret:  cfg.Auth.JWTSecret,
		},
		Catalog:  catalog.Config{EventTTL: cfg.Checkout.EventCacheTTL},
		Checkout: checkout.Config{},
	})

	router := httpgin.NewRouter(services, logger, httpgin.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		CookieSecure: cfg.Server.CookieSecure,
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		pubsub:   pubsub,
		rdb:      rdb,
		pool:     pool,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Drops cached events when any instance books seats.
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, a.services.Catalog.HandleEventChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event subscriber: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.pool != nil {
		a.pool.Close()
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("close redis", "error", err)
	}
}
