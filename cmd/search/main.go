package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/trazkul/analytics-prom/internal/config"
	"github.com/trazkul/analytics-prom/internal/logger"
	"github.com/trazkul/analytics-prom/internal/models"
	"github.com/trazkul/analytics-prom/internal/ratelimit"
	"github.com/trazkul/analytics-prom/internal/scraper"
	"github.com/trazkul/analytics-prom/internal/storage"
)

func main() {
	var (
		query      = flag.String("q", "", "Search text; queries are split on , . ; and newlines (default: read stdin)")
		outputFile = flag.String("output", "", "Output CSV file (optional)")
		useCache   = flag.Bool("cache", false, "Cache results in Redis for CACHE_TTL")
	)
	flag.Parse()

	text := *query
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read stdin: %v", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("Please provide search text with -q or on stdin")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache scraper.ResultCache
	if *useCache {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = storage.NewQueryCache(client, cfg.Cache.TTL)
	}

	fetcher := scraper.NewHTTPFetcher(cfg.Scraper.Timeout, cfg.Scraper.UserAgent, cfg.Scraper.AcceptLanguage)
	crawler := scraper.NewCrawler(fetcher,
		ratelimit.NewJitterLimiter(cfg.Scraper.ListingDelayMin, cfg.Scraper.ListingDelayMax),
		1, logger)
	service := scraper.NewService(cfg.Scraper.SearchURL, crawler, cache, logger)

	results, err := service.SearchAll(ctx, text)
	if err != nil {
		logger.Error("Search failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(models.RenderText(results))

	if *outputFile != "" {
		var products []models.Product
		for _, result := range results {
			products = append(products, result.Products...)
		}
		if err := storage.NewCSVFile(*outputFile).Write(products); err != nil {
			logger.Error("Failed to save results", "error", err)
			os.Exit(1)
		}
		logger.Info("Results saved", "file", *outputFile, "products", len(products))
	}
}
