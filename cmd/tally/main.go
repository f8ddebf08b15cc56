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
	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/auth"
	"tally/internal/cache"
	"tally/internal/config"
	"tally/internal/core"
	apphttp "tally/internal/http"
	applog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/services"
	"tally/internal/storage"
	"tally/internal/storage/memory"
)

// dataStore is the full store surface the server needs. Both backends
// satisfy it.
type dataStore interface {
	auth.UserStore
	auth.SessionStore
	services.TaxonomyStore
	services.ExpenseStore
	services.IncomeStore
	services.BudgetStore
	services.ReportStore
	apphttp.ReadyChecker
}

func main() {
	// Load .env for local development; ignore errors in production.
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var store dataStore
	switch cfg.DataBackend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository",
				"error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	default:
		store = memory.New()
		logger.Info("Initialized memory backend")
	}

	// The broker is optional: without it expenses stay local and the
	// reconcile sweep in the worker picks them up later.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, export messages disabled", "error", err)
		} else {
			amqpClient = client
			publisher = client
			defer amqpClient.Close()
		}
	}

	reportCache := cache.NewLRUCache[core.MonthReport](100, 5*time.Minute)
	cacheManager := cache.NewManager()
	cacheManager.Register(reportCache)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.StopCleanup()

	authManager := auth.NewManager(store, store, cfg.SessionTTL, cfg.BcryptCost)
	reports := services.NewReportService(store, reportCache)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Auth:           authManager,
		Taxonomy:       store,
		Expenses:       services.NewExpenseService(store, publisher, reports),
		Incomes:        services.NewIncomeService(store, reports),
		Budgets:        services.NewBudgetService(store),
		Reports:        reports,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Ready:          store,
	})
	srv.Handler = applog.Middleware(logger)(srv.Handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting tally server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		authManager.CleanupLoop(ctx, time.Hour)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
