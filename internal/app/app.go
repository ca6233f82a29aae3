package app

import (
	"context"
	"fmt"

	"offerengine/internal/domain/promotion"
	"offerengine/internal/infrastructure/cache"
	"offerengine/internal/infrastructure/rule"
	"offerengine/internal/infrastructure/storage/postgres"
	"offerengine/internal/infrastructure/storage/postgres/offer_repo"
	"offerengine/internal/infrastructure/storage/postgres/order_repo"
	"offerengine/pkg/logger"
)

// App holds the wired engine shared by the server and the worker.
type App struct {
	Config Config
	Log    *logger.Logger

	Pool      *postgres.Pool
	TxManager *postgres.TxManager

	Listener *cache.Listener
	Offers   *cache.OfferCache
	Flags    *cache.FeatureFlags

	Codes  *offer_repo.CodeRepo
	Usage  *offer_repo.UsageRepo
	Orders *order_repo.OrderRepo

	Audit *postgres.PricingAudit
	Queue *postgres.RepriceQueue

	Promotions *promotion.Service
}

// New connects to PostgreSQL and wires repositories, caches and the promotion service.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*App, error) {
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	txManager := postgres.NewTxManager(pool).WithRetryPolicy(cfg.Retry)

	audit, err := postgres.NewPricingAudit(txManager)
	if err != nil {
		pool.Close()
		return nil, err
	}

	rules, err := rule.NewCELEvaluator()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create rule evaluator: %w", err)
	}

	a := &App{
		Config:    cfg,
		Log:       log,
		Pool:      pool,
		TxManager: txManager,
		Listener:  cache.NewListener(pool.Pool),
		Offers:    cache.NewOfferCache(offer_repo.NewOfferRepo(txManager)),
		Flags:     cache.NewFeatureFlags(pool.Pool),
		Codes:     offer_repo.NewCodeRepo(txManager),
		Usage:     offer_repo.NewUsageRepo(txManager),
		Orders:    order_repo.NewOrderRepo(txManager),
		Audit:     audit,
		Queue:     postgres.NewRepriceQueue(txManager),
	}
	a.Offers.Attach(a.Listener)
	a.Flags.Attach(a.Listener)

	a.Promotions = promotion.NewService(cfg.Promotion, promotion.Dependencies{
		Offers:         a.Offers,
		Codes:          a.Codes,
		CustomerOffers: offer_repo.NewCustomerOfferRepo(txManager),
		Usage:          a.Usage,
		Orders:         a.Orders,
		TxManager:      txManager,
		Rules:          rules,
		RunRecorder:    audit,
		UsageRecorder:  a.Usage,
	})
	return a, nil
}

// Start loads feature flags and begins listening for cache invalidations.
func (a *App) Start(ctx context.Context) error {
	if err := a.Flags.Load(ctx); err != nil {
		return err
	}
	return a.Listener.Start(ctx)
}

// Close stops the listener and closes the pool.
func (a *App) Close() {
	a.Listener.Stop()
	a.Pool.Close()
}
