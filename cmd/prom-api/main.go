package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/trazkul/analytics-prom/internal/api"
	"github.com/trazkul/analytics-prom/internal/batch"
	"github.com/trazkul/analytics-prom/internal/config"
	"github.com/trazkul/analytics-prom/internal/database"
	"github.com/trazkul/analytics-prom/internal/events"
	"github.com/trazkul/analytics-prom/internal/jobs"
	"github.com/trazkul/analytics-prom/internal/logger"
	"github.com/trazkul/analytics-prom/internal/ratelimit"
	"github.com/trazkul/analytics-prom/internal/scraper"
	"github.com/trazkul/analytics-prom/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Outbox relay
	relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		StreamMaxLen: cfg.Redis.StreamMaxLen,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	// Scraping
	fetcher := scraper.NewHTTPFetcher(cfg.Scraper.Timeout, cfg.Scraper.UserAgent, cfg.Scraper.AcceptLanguage)
	listingDelay := ratelimit.NewJitterLimiter(cfg.Scraper.ListingDelayMin, cfg.Scraper.ListingDelayMax)
	productDelay := ratelimit.NewJitterLimiter(cfg.Scraper.ProductDelayMin, cfg.Scraper.ProductDelayMax)
	backfiller := scraper.NewBackfiller(fetcher, productDelay, logger)

	searchService := scraper.NewService(
		cfg.Scraper.SearchURL,
		scraper.NewCrawler(fetcher, listingDelay, 1, logger),
		storage.NewQueryCache(redisClient, cfg.Cache.TTL),
		logger,
	)

	newRunner := func(maxPages int) jobs.BatchRunner {
		crawler := scraper.NewCrawler(fetcher, listingDelay, maxPages, logger)
		return batch.NewRunner(crawler, backfiller, cfg.Scraper.ConcurrentCrawls, logger)
	}
	jobManager := jobs.NewManager(
		database.NewJobRepository(db),
		newRunner,
		events.NewBuilder(cfg.Redis.Stream),
		cfg.Scraper.JobPollInterval,
		logger,
	)
	go jobManager.StartWorker(ctx)

	handlers := api.NewHandlers(searchService, jobManager, relay, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handlers.Routes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
