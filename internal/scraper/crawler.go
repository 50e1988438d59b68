package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trazkul/analytics-prom/internal/models"
	"github.com/trazkul/analytics-prom/internal/parser"
	"github.com/trazkul/analytics-prom/internal/ratelimit"
)

// Reasons a crawl ended, as reported in CrawlResult.StopReason.
const (
	StopCompleted = "completed"
	StopMaxPages  = "max_pages"
	StopEmptyPage = "empty_page"
	StopNotFound  = "not_found"
	StopCancelled = "cancelled"
)

// Crawler walks the pages of one listing at a time. Pages of a listing are
// fetched strictly in order; a Crawler may serve concurrent Crawl calls.
type Crawler struct {
	fetcher  Fetcher
	delay    ratelimit.RateLimiter
	maxPages int
	logger   *slog.Logger
}

// NewCrawler creates a crawler that waits on delay before every listing
// fetch. maxPages caps the pages visited per listing; zero means no cap.
func NewCrawler(fetcher Fetcher, delay ratelimit.RateLimiter, maxPages int, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		fetcher:  fetcher,
		delay:    delay,
		maxPages: maxPages,
		logger:   logger.With("component", "crawler"),
	}
}

// FetchPage fetches and parses a single listing page. Transport and
// extraction failures are retried; a 404 or 410 fails at once with
// ErrListingNotFound.
func (c *Crawler) FetchPage(ctx context.Context, pageURL string) (*parser.PageResult, error) {
	page, err := c.fetchListing(ctx, pageURL, isGone)
	if err != nil {
		if isGone(err) {
			return nil, fmt.Errorf("%w: %w", ErrListingNotFound, err)
		}
		return nil, err
	}
	return page, nil
}

// Crawl collects the deduplicated products of every page of the listing at
// startURL. A failure on the first page aborts the crawl. Later pages are
// skipped or end the crawl depending on how they fail. On cancellation the
// products gathered so far are returned with the context error.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (*models.CrawlResult, error) {
	started := time.Now()
	logger := c.logger.With("url", startURL)

	first, err := c.FetchPage(ctx, startURL)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", startURL, err)
	}

	state := newCrawlState(startURL)
	state.add(first.Products)
	state.result.PagesFetched = 1

	pages := pageCount(first.Total, first.Limit)
	capped := false
	if c.maxPages > 0 && pages > c.maxPages {
		pages = c.maxPages
		capped = true
	}
	state.result.PagesPlanned = pages
	state.result.StopReason = StopCompleted
	if capped {
		state.result.StopReason = StopMaxPages
	}

	logger.Info("crawl started",
		"total", first.Total, "limit", first.Limit, "pages", pages, "products", len(first.Products))

	for n := 2; n <= pages; n++ {
		pageURL := BuildPageURL(startURL, n)
		page, err := c.fetchListing(ctx, pageURL, func(err error) bool {
			return isGone(err) || isServerError(err)
		})

		switch {
		case ctx.Err() != nil:
			state.result.StopReason = StopCancelled
			return state.finish(started), ctx.Err()
		case err != nil && isGone(err):
			logger.Info("listing ended early", "page", n, "error", err)
			state.result.StopReason = StopNotFound
			return state.finish(started), nil
		case err != nil:
			logger.Warn("skipping page", "page", n, "error", err)
			state.result.PagesSkipped++
			continue
		case page.RawCount == 0:
			logger.Info("empty page, stopping", "page", n)
			state.result.PagesFetched++
			state.result.StopReason = StopEmptyPage
			return state.finish(started), nil
		}

		state.result.PagesFetched++
		added := state.add(page.Products)
		logger.Debug("page collected", "page", n, "products", len(page.Products), "new", added)
	}

	result := state.finish(started)
	logger.Info("crawl completed",
		"products", len(result.Products), "fetched", result.PagesFetched, "skipped", result.PagesSkipped)
	return result, nil
}

// fetchListing runs up to MaxAttempts fetch-and-parse attempts, each after a
// politeness delay. final marks errors that must not be retried.
func (c *Crawler) fetchListing(ctx context.Context, pageURL string, final func(error) bool) (*parser.PageResult, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := c.delay.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.attempt(ctx, pageURL)
		if err == nil {
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if final(err) {
			return nil, err
		}

		lastErr = err
		c.logger.Warn("listing fetch failed", "url", pageURL, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", MaxAttempts, lastErr)
}

func (c *Crawler) attempt(ctx context.Context, pageURL string) (*parser.PageResult, error) {
	resp, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return parser.ParsePage(resp.Body, resp.URL)
}

func pageCount(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}

// crawlState is owned by a single Crawl call.
type crawlState struct {
	seen   map[string]struct{}
	result *models.CrawlResult
}

func newCrawlState(startURL string) *crawlState {
	return &crawlState{
		seen:   make(map[string]struct{}),
		result: &models.CrawlResult{StartURL: startURL, Products: []models.Product{}},
	}
}

// add appends products not seen before and returns how many were new.
func (s *crawlState) add(products []models.Product) int {
	added := 0
	for _, p := range products {
		if _, ok := s.seen[p.URL]; ok {
			continue
		}
		s.seen[p.URL] = struct{}{}
		s.result.Products = append(s.result.Products, p)
		added++
	}
	return added
}

func (s *crawlState) finish(started time.Time) *models.CrawlResult {
	s.result.Duration = time.Since(started)
	return s.result
}
