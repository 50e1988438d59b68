package batch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/trazkul/analytics-prom/internal/models"
)

type Crawler interface {
	Crawl(ctx context.Context, startURL string) (*models.CrawlResult, error)
}

type Backfiller interface {
	Fill(ctx context.Context, products []models.Product) error
}

// Failure is a start URL that produced no products.
type Failure struct {
	URL string
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.URL, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report is the merged outcome of a batch run.
type Report struct {
	// Products are deduplicated across start URLs, first occurrence first.
	Products []models.Product
	Results  []*models.CrawlResult
	Failures []Failure
}

func (r *Report) PagesFetched() int {
	total := 0
	for _, result := range r.Results {
		total += result.PagesFetched
	}
	return total
}

// Runner crawls a list of start URLs and merges the results.
type Runner struct {
	crawler     Crawler
	backfiller  Backfiller
	concurrency int
	logger      *slog.Logger
}

// NewRunner creates a runner that crawls up to concurrency start URLs at a
// time. backfiller may be nil to skip the manufacturer pass.
func NewRunner(crawler Crawler, backfiller Backfiller, concurrency int, logger *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		crawler:     crawler,
		backfiller:  backfiller,
		concurrency: concurrency,
		logger:      logger.With("component", "batch"),
	}
}

type outcome struct {
	result *models.CrawlResult
	err    error
}

// Run crawls every start URL. A failing URL is recorded in the report and
// does not stop the others. The merge follows the order of startURLs no
// matter which crawl finishes first. The returned error is only set when
// ctx ends the run early; the report then holds what was finished.
func (r *Runner) Run(ctx context.Context, startURLs []string) (*Report, error) {
	outcomes := make([]outcome, len(startURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, startURL := range startURLs {
		g.Go(func() error {
			outcomes[i] = r.crawlOne(gctx, startURL)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Products: []models.Product{}}
	seen := make(map[string]struct{})

	for i, o := range outcomes {
		if o.err != nil {
			report.Failures = append(report.Failures, Failure{URL: startURLs[i], Err: o.err})
			continue
		}
		if o.result == nil {
			continue
		}

		report.Results = append(report.Results, o.result)
		for _, p := range o.result.Products {
			if _, ok := seen[p.URL]; ok {
				continue
			}
			seen[p.URL] = struct{}{}
			report.Products = append(report.Products, p)
		}
	}

	r.logger.Info("batch completed",
		"urls", len(startURLs),
		"products", len(report.Products),
		"failures", len(report.Failures))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) crawlOne(ctx context.Context, startURL string) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}

	result, err := r.crawler.Crawl(ctx, startURL)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("crawl failed", "url", startURL, "error", err)
		}
		return outcome{result: result, err: err}
	}

	if r.backfiller != nil {
		if err := r.backfiller.Fill(ctx, result.Products); err != nil {
			return outcome{result: result, err: err}
		}
	}

	return outcome{result: result}
}
