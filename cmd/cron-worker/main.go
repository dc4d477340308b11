package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/gemtrade-backend/internal/cron"
	"github.com/angelmondragon/gemtrade-backend/internal/ledger"
	"github.com/angelmondragon/gemtrade-backend/pkg/config"
	"github.com/angelmondragon/gemtrade-backend/pkg/db"
	"github.com/angelmondragon/gemtrade-backend/pkg/instance"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
	"github.com/angelmondragon/gemtrade-backend/pkg/migrate"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox"
	"github.com/angelmondragon/gemtrade-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		InstanceID:  instance.GetID(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	// Two replicas must not repair the same rows, so the lock is mandatory.
	if !cfg.Redis.Enabled() {
		return errors.New("cron worker requires redis for its lock")
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeLogged(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeLogged(logg, "redis", redisClient.Close)

	service, err := newMaintenance(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "interval", cfg.Maintenance.Interval.String()), "starting cron worker")
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(ctx) })
	group.Go(func() error { return metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer) })
	return group.Wait()
}

// newMaintenance registers the reconcile and retention jobs behind one lock.
func newMaintenance(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	jobMetrics := metrics.NewMaintenanceMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName, cfg.App.Env), 0)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	reconcile, err := cron.NewInventoryReconcileJob(cron.InventoryReconcileJobParams{
		Logger:  logg,
		Audit:   ledger.NewAuditRepository(dbClient.DB()),
		Metrics: jobMetrics,
		Limit:   cfg.Maintenance.DriftReportLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory reconcile job: %w", err)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Metrics:    jobMetrics,
		Retention:  cfg.Maintenance.OutboxRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcile, retention),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Maintenance.Interval,
	})
}

func closeLogged(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
