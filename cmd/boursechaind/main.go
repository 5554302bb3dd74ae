package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/boursechain/boursechain/internal/anchor"
	"github.com/boursechain/boursechain/internal/config"
	"github.com/boursechain/boursechain/internal/engine"
	"github.com/boursechain/boursechain/internal/handler"
	"github.com/boursechain/boursechain/internal/ledger"
	"github.com/boursechain/boursechain/internal/ledger/memory"
	"github.com/boursechain/boursechain/internal/ledger/sqlite"
	"github.com/boursechain/boursechain/internal/notify"
	"github.com/boursechain/boursechain/internal/service"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ledger store: SQLite when DB_PATH is set, in-memory otherwise.
	var store ledger.Store
	if cfg.DBPath != "" {
		s, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			logger.Error("failed to open database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = s
		logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
	} else {
		store = memory.NewStore()
		logger.Info("using in-memory store")
	}
	defer store.Close()

	// Notification dispatcher: webhook when NOTIFY_URL is set.
	var dispatcher notify.Dispatcher
	if cfg.NotifyURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.NotifyURL, cfg.NotifyTimeout, logger)
	} else {
		dispatcher = &notify.LogDispatcher{Logger: logger}
	}

	recorder := &anchor.LogRecorder{Logger: logger}

	// Engine.
	settler := engine.NewSettler(store, dispatcher, recorder, logger)
	matcher := engine.NewMatcher(store, settler, logger)
	reserver := engine.NewReserver(store, logger)
	sweeper := engine.NewSweeper(store, matcher, reserver, cfg.SweepInterval, logger)

	// Services.
	accountSvc := service.NewAccountService(store, logger)
	orderSvc := service.NewOrderService(store, reserver, matcher, logger)
	stockSvc := service.NewStockService(store, logger)

	// Router.
	router := handler.NewRouter(accountSvc, orderSvc, stockSvc, sweeper, logger)

	// Start the conditional-order sweeper with a cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper.Start(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops sweeper).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
