// Package main provides the entry point for the scraper server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/api/handlers"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/browser"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/config"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/jobs"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/journal"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/logging"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/scrape"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/service"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/session"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/version"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/webhook"
)

const feedBaseURL = "https://www.facebook.com"

func main() {
	// Load configuration first (logging config comes from env)
	cfg := config.Load()

	// Initialize logger using slog-logfilter (respects LOG_LEVEL, LOG_FORMAT env vars)
	logger := logging.SetDefault()

	logger.Info("starting scraper server",
		"version", version.Get().Version,
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"recycle_policy", cfg.RecyclePolicy,
	)

	policy, err := session.ParsePolicy(cfg.RecyclePolicy, cfg.RecycleEveryN)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Create context for background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Browser driver (Chromium is fetched up front so the first job is fast)
	drv := browser.New(cfg, logger)
	if err := drv.Warmup(ctx); err != nil {
		logger.Error("browser warmup failed", "error", err)
		os.Exit(1)
	}

	ops := scrape.NewRod(feedBaseURL, logger)

	// Session manager and its janitor
	mgr := session.NewManager(cfg, drv, policy, ops.Warm, logger)
	go mgr.RunJanitor(ctx)

	// Task journal (optional)
	var store *journal.Store
	if cfg.JournalDBPath != "" {
		store, err = journal.NewStore(cfg.JournalDBPath, logger)
		if err != nil {
			logger.Error("failed to open task journal", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	// Async dispatch and the service layer
	sender := webhook.NewSender(cfg.WebhookTimeout, logger)
	dispatcher := jobs.NewDispatcher(mgr, sender, store, logger)
	svc := service.NewScraper(cfg, mgr, ops, dispatcher, store, logger)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting: scrape jobs are heavyweight, keep abusive callers out
	r.Use(httprate.LimitByIP(60, time.Minute))

	// Create Huma API
	humaConfig := huma.DefaultConfig("Scraper Server", version.Get().Version)
	humaConfig.Info.Description = "Session-serialized browser scraping service"
	api := humachi.New(r, humaConfig)

	handlers.Register(api, handlers.New(svc, logger))

	// Create HTTP server. Write timeout stays generous: sync scrape runs
	// can legitimately hold a response for minutes.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Stop accepting HTTP requests first
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop the janitor and warm scheduling
	cancel()

	// Let dispatched async jobs and their callbacks finish, then drain the
	// session gates and close every browser.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("async jobs still pending at shutdown", "error", err)
	}
	mgr.Stop(shutdownCtx)

	logger.Info("server stopped")
}
