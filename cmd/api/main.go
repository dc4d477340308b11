package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/gemtrade-backend/api/routes"
	"github.com/angelmondragon/gemtrade-backend/internal/clients"
	"github.com/angelmondragon/gemtrade-backend/internal/inventory"
	"github.com/angelmondragon/gemtrade-backend/internal/ledger"
	"github.com/angelmondragon/gemtrade-backend/internal/resolver"
	"github.com/angelmondragon/gemtrade-backend/internal/sales"
	"github.com/angelmondragon/gemtrade-backend/pkg/config"
	"github.com/angelmondragon/gemtrade-backend/pkg/db"
	"github.com/angelmondragon/gemtrade-backend/pkg/instance"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
	"github.com/angelmondragon/gemtrade-backend/pkg/migrate"
	"github.com/angelmondragon/gemtrade-backend/pkg/outbox"
	"github.com/angelmondragon/gemtrade-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		InstanceID:  instance.GetID(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis backs sale code counters and idempotency keys. Without it codes
	// fall back to time based suffixes and keys are not enforced.
	var redisClient *redis.Client
	var sequencer sales.Sequencer
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		sequencer = redisClient
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured; idempotency keys disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	saleMetrics := metrics.NewSaleMetrics(registry)

	conn := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	inventoryRepo := inventory.NewRepository(conn)
	clientRepo := clients.NewRepository(conn)

	adjuster, err := ledger.NewAdjuster(ledger.AdjusterParams{
		Repo:           ledger.NewRepository(conn),
		Logger:         logg,
		Metrics:        saleMetrics,
		MaxCASAttempts: cfg.Ledger.MaxCASAttempts,
	})
	if err != nil {
		logg.Error(ctx, "failed to create ledger adjuster", err)
		os.Exit(1)
	}

	stoneResolver, err := resolver.New(resolver.NewRepository(conn), logg, saleMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create stone resolver", err)
		os.Exit(1)
	}

	inventoryService, err := inventory.NewService(inventoryRepo, dbClient, adjuster, outboxService)
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}

	clientService, err := clients.NewService(clientRepo)
	if err != nil {
		logg.Error(ctx, "failed to create client service", err)
		os.Exit(1)
	}

	salesService, err := sales.NewService(sales.ServiceParams{
		Repo:          sales.NewRepository(conn),
		Resolver:      stoneResolver,
		Ledger:        adjuster,
		Inventory:     inventoryRepo,
		Clients:       clientRepo,
		Outbox:        outboxService,
		Codes:         sales.NewCodeGenerator(cfg.Sales.CodePrefix, sequencer, logg),
		Tx:            dbClient,
		Logger:        logg,
		Metrics:       saleMetrics,
		Transactional: cfg.Sales.Transactional,
	})
	if err != nil {
		logg.Error(ctx, "failed to create sales service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"addr":          addr,
		"transactional": cfg.Sales.Transactional,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, registry, salesService, inventoryService, clientService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
