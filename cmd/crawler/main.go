package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/trazkul/analytics-prom/internal/batch"
	"github.com/trazkul/analytics-prom/internal/config"
	"github.com/trazkul/analytics-prom/internal/logger"
	"github.com/trazkul/analytics-prom/internal/ratelimit"
	"github.com/trazkul/analytics-prom/internal/scraper"
	"github.com/trazkul/analytics-prom/internal/storage"
)

// urlList collects repeated -url flags.
type urlList []string

func (l *urlList) String() string {
	return strings.Join(*l, ",")
}

func (l *urlList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

type options struct {
	urls       []string
	maxPages   int
	output     string
	concurrent int
}

func main() {
	var (
		urls         urlList
		urlsFile     = flag.String("urls-file", "", "File with one start URL per line")
		manifestPath = flag.String("manifest", "", "YAML manifest with urls, max_pages and output")
		output       = flag.String("output", "products.csv", "CSV output file")
		maxPages     = flag.Int("pages", 0, "Maximum pages per start URL (0 = all)")
		concurrent   = flag.Int("concurrent", 0, "Start URLs crawled at once (0 = SCRAPER_CONCURRENT_CRAWLS)")
	)
	flag.Var(&urls, "url", "Listing URL to crawl (repeatable)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	opts := options{
		urls:       urls,
		maxPages:   cfg.Scraper.MaxPages,
		output:     *output,
		concurrent: cfg.Scraper.ConcurrentCrawls,
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *urlsFile != "" {
		fileURLs, err := config.ReadURLFile(*urlsFile)
		if err != nil {
			logger.Error("Failed to read url file", "error", err)
			os.Exit(1)
		}
		opts.urls = append(opts.urls, fileURLs...)
	}

	if *manifestPath != "" {
		manifest, err := config.LoadManifest(*manifestPath)
		if err != nil {
			logger.Error("Failed to load manifest", "error", err)
			os.Exit(1)
		}
		opts.urls = append(opts.urls, manifest.URLs...)
		if manifest.MaxPages > 0 {
			opts.maxPages = manifest.MaxPages
		}
		if manifest.Output != "" && !set["output"] {
			opts.output = manifest.Output
		}
	}

	if set["pages"] {
		opts.maxPages = *maxPages
	}
	if *concurrent > 0 {
		opts.concurrent = *concurrent
	}
	opts.urls = config.NormalizeURLs(opts.urls)

	if len(opts.urls) == 0 {
		fmt.Println("Please provide start URLs with -url, -urls-file or -manifest")
		flag.Usage()
		os.Exit(1)
	}
	if opts.maxPages < 0 {
		fmt.Println("-pages cannot be negative")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, opts); err != nil {
		logger.Error("Crawl failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts options) error {
	logger.Info("Starting crawl",
		"urls", len(opts.urls),
		"max_pages", opts.maxPages,
		"concurrent", opts.concurrent,
		"output", opts.output)

	fetcher := scraper.NewHTTPFetcher(cfg.Scraper.Timeout, cfg.Scraper.UserAgent, cfg.Scraper.AcceptLanguage)
	crawler := scraper.NewCrawler(fetcher,
		ratelimit.NewJitterLimiter(cfg.Scraper.ListingDelayMin, cfg.Scraper.ListingDelayMax),
		opts.maxPages, logger)
	backfiller := scraper.NewBackfiller(fetcher,
		ratelimit.NewJitterLimiter(cfg.Scraper.ProductDelayMin, cfg.Scraper.ProductDelayMax),
		logger)

	report, err := batch.NewRunner(crawler, backfiller, opts.concurrent, logger).Run(ctx, opts.urls)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		logger.Warn("Crawl interrupted, saving partial results", "products", len(report.Products))
	}

	for _, f := range report.Failures {
		logger.Error("Start URL failed", "url", f.URL, "error", f.Err)
	}

	out := storage.NewCSVFile(opts.output)
	if err := out.Write(report.Products); err != nil {
		return err
	}

	logger.Info("Crawl finished",
		"products", len(report.Products),
		"pages", report.PagesFetched(),
		"failed_urls", len(report.Failures),
		"output", out.Path())

	if len(report.Results) == 0 && len(report.Failures) > 0 {
		return fmt.Errorf("all %d start urls failed", len(report.Failures))
	}
	return nil
}
