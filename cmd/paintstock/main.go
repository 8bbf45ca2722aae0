package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/paintstock/paintstock/internal/app"
	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/discount"
	"github.com/paintstock/paintstock/internal/folio"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/observability"
	"github.com/paintstock/paintstock/internal/platform/cache"
	"github.com/paintstock/paintstock/internal/platform/db"
	"github.com/paintstock/paintstock/internal/restock"
	"github.com/paintstock/paintstock/internal/sales"
	"github.com/paintstock/paintstock/internal/shared"
	"github.com/paintstock/paintstock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	// Without Redis the API still serves: catalog reads go to Postgres and
	// discount events stay in-process.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, using in-process fallbacks", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	catalogReader := catalog.NewCachedReader(catalog.NewRepository(dbpool), redisClient, cfg.CatalogCacheTTL)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), catalogReader, auditLogger, logger, metrics)

	salesService := sales.NewService(sales.NewRepository(dbpool), catalogReader, auditLogger, logger, metrics,
		sales.Config{TaxRate: cfg.TaxRate})

	restockService := restock.NewService(restock.NewRepository(dbpool, idempotencyStore), catalogReader, auditLogger, logger, metrics,
		restock.Config{ReserveOnShip: cfg.RestockReserveOnShip})

	discountService := discount.NewService(discount.NewRepository(dbpool), newNotifier(redisClient, logger), auditLogger, logger, metrics)

	folioService := folio.NewService(folio.NewRepository(dbpool))

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		SalesHandler:     sales.NewHandler(logger, salesService),
		RestockHandler:   restock.NewHandler(logger, restockService),
		DiscountHandler:  discount.NewHandler(logger, discountService),
		FolioHandler:     folio.NewHandler(folioService),
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func newNotifier(client *redis.Client, logger *slog.Logger) discount.Notifier {
	if client == nil {
		return discount.NewHub(logger)
	}
	return discount.NewRedisNotifier(client, logger)
}
