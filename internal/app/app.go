// Package app wires configuration, infrastructure clients, and domain
// packages together into the api and worker runtime modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/lotsync/internal/clock"
	"github.com/wisbric/lotsync/internal/config"
	"github.com/wisbric/lotsync/internal/httpserver"
	"github.com/wisbric/lotsync/internal/platform"
	"github.com/wisbric/lotsync/internal/seed"
	"github.com/wisbric/lotsync/internal/telemetry"
	"github.com/wisbric/lotsync/pkg/catalog"
	"github.com/wisbric/lotsync/pkg/drainworker"
	"github.com/wisbric/lotsync/pkg/editapi"
	"github.com/wisbric/lotsync/pkg/opsnotify"
	"github.com/wisbric/lotsync/pkg/provideradapter"
	"github.com/wisbric/lotsync/pkg/providera"
	"github.com/wisbric/lotsync/pkg/providerb"
	"github.com/wisbric/lotsync/pkg/providerconfig"
	"github.com/wisbric/lotsync/pkg/ratelimit"
	"github.com/wisbric/lotsync/pkg/statusquery"
	"github.com/wisbric/lotsync/pkg/tenant"
	"github.com/wisbric/lotsync/pkg/webhook"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api, worker, or
// seed-demo).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting lotsync", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "seed-demo":
		return seed.RunDemo(ctx, db, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// adapters builds the two concrete provider adapters, backed by their own
// Postgres-and-Redis idempotency logs.
func adapters(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client) (a, b provideradapter.Adapter) {
	return providera.NewClient(cfg.ProviderABaseURL, providera.NewPostgresDedup(db, rdb)),
		providerb.NewClient(cfg.ProviderBBaseURL, providerb.NewPostgresDedup(db, rdb))
}

func resolveAdapter(a, b provideradapter.Adapter) drainworker.AdapterResolver {
	return func(provider string) (provideradapter.Adapter, bool) {
		switch provider {
		case string(provideradapter.ProviderA):
			return a, true
		case string(provideradapter.ProviderB):
			return b, true
		default:
			return nil, false
		}
	}
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *opsnotify.Fanout {
	return opsnotify.NewFanout(logger,
		opsnotify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger),
		opsnotify.NewMattermostNotifier(cfg.MattermostURL, cfg.MattermostBotToken, cfg.MattermostDefaultChannelID, logger),
	)
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	clk := clock.New()
	lookup := &tenant.PoolLookup{Pool: db}
	resolver := tenant.HeaderResolver{}
	credentialKey := providerconfig.DeriveKey(cfg.WebhookKeySecret)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, resolver, lookup)

	editSvc := editapi.NewService(db, clk, credentialKey)
	statusSvc := statusquery.NewService(db)
	srv.APIRouter.Mount("/items", editapi.NewHandler(editSvc).Routes())
	srv.APIRouter.Mount("/items-status", statusquery.NewHandler(statusSvc).Routes())

	refreshTrigger := func(ctx context.Context, providerName, resourceID string) error {
		store := catalog.NewStore(db)
		_, err := store.CheckAndEnqueue(ctx, provideradapter.ReferencePart, resourceID, "", time.Time{}, catalog.PriorityHigh, clk.Now())
		if err != nil {
			return fmt.Errorf("enqueueing refresh for %s/%s: %w", providerName, resourceID, err)
		}
		return nil
	}

	webhookDedup := webhook.NewDedup(db, rdb, logger)
	webhookHandler := webhook.NewHandler(lookup, webhookDedup, refreshTrigger, clk, logger, cfg.WebhookKeySecret, int64(cfg.WebhookPayloadMax), cfg.WebhookMaxAge)
	webhookHandler.Mount(srv.Router)

	// The backstop's trigger only logs each tick; it enqueues no refresh.
	pollTrigger := func(ctx context.Context, tenantSlug string) error {
		logger.Debug("webhook poll backstop tick", "tenant", tenantSlug)
		return nil
	}
	backstop := webhook.NewPollBackstop(db, logger, pollTrigger, cfg.WebhookPollBackstop)
	go backstop.Run(ctx)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")

	clk := clock.New()
	limiter := ratelimit.New(rdb)
	credentialKey := providerconfig.DeriveKey(cfg.WebhookKeySecret)
	configs := providerconfig.NewStore(db, credentialKey)
	lookup := &tenant.PoolLookup{Pool: db}
	notifier := buildNotifier(cfg, logger)

	adapterA, adapterB := adapters(cfg, db, rdb)
	resolve := resolveAdapter(adapterA, adapterB)

	drain := drainworker.New(db, clk, logger, limiter, configs, resolve, lookup, notifier, drainworker.Tuning{
		BatchSize:     cfg.OutboxBatchSize,
		PollPeriod:    cfg.OutboxPollPeriod,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase(),
		BackoffCap:    cfg.BackoffCap(),
		BackoffJitter: cfg.BackoffJitter(),
	})

	catalogWorker := catalog.NewWorker(db, clk, logger, func() (provideradapter.Adapter, provideradapter.Credentials, bool) {
		return adapterA, provideradapter.Credentials{}, true
	}, notifier, catalog.Tuning{
		BatchSize:     cfg.CatalogBatchSize,
		PollPeriod:    cfg.CatalogPollPeriod,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase(),
		BackoffCap:    cfg.BackoffCap(),
		BackoffJitter: cfg.BackoffJitter(),
	})

	go drain.Run(ctx)
	catalogWorker.Run(ctx)
	return nil
}
