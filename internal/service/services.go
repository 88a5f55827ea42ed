package service

import (
	"log/slog"

	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	postgresrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/redis"
	"github.com/kirinyoku/eventhub-checkout/internal/service/auth"
	"github.com/kirinyoku/eventhub-checkout/internal/service/catalog"
	"github.com/kirinyoku/eventhub-checkout/internal/service/checkout"
	"github.com/kirinyoku/eventhub-checkout/internal/service/promotion"
	"github.com/kirinyoku/eventhub-checkout/internal/service/transactions"
)

type Services struct {
	Auth         *auth.Service
	Catalog      *catalog.Service
	Checkout     *checkout.Service
	Transactions *transactions.Service
}

type Config struct {
	Auth         auth.Config
	Catalog      catalog.Config
	Checkout     checkout.Config
	Transactions transactions.Config
}

// Deps are the adapters the services are built on. Store may be nil, in
// which case no receipts are recorded or listed.
type Deps struct {
	EventHub     *eventhub.Client
	Store        *postgresrepo.Store
	Cache        *redisrepo.Cache
	PubSub       *redisrepo.EventsPubSub
	Sessions     *redisrepo.SessionStore
	Checkouts    *redisrepo.CheckoutStore
	Locks        *redisrepo.IdempotencyStore
	PromoLimiter *redisrepo.SlidingWindowLimiter
}

func NewServices(deps Deps, logger *slog.Logger, cfg Config) *Services {
	cat := catalog.New(deps.EventHub, deps.Cache, logger, cfg.Catalog)

	var limiter promotion.Limiter
	if deps.PromoLimiter != nil {
		limiter = deps.PromoLimiter
	}

	var (
		recorder checkout.ReceiptRecorder
		receipts transactions.ReceiptLister
	)
	if deps.Store != nil {
		recorder = checkout.NewReceiptRecorder(deps.Store)
		receipts = deps.Store.Receipts()
	}

	return &Services{
		Auth:    auth.New(deps.EventHub, deps.Sessions, cfg.Auth),
		Catalog: cat,
		Checkout: checkout.New(
			cat,
			promotion.New(deps.EventHub, limiter),
			deps.EventHub,
			deps.Checkouts,
			deps.Locks,
			deps.Cache,
			deps.PubSub,
			recorder,
			logger,
			cfg.Checkout,
		),
		Transactions: transactions.New(deps.EventHub, receipts, cfg.Transactions),
	}
}
