package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trazkul/analytics-prom/internal/models"
	"github.com/trazkul/analytics-prom/internal/parser"
	"github.com/trazkul/analytics-prom/internal/ratelimit"
)

// Backfiller fills in manufacturers the listing view left out by visiting
// the individual product pages.
type Backfiller struct {
	fetcher Fetcher
	delay   ratelimit.RateLimiter
	logger  *slog.Logger
}

func NewBackfiller(fetcher Fetcher, delay ratelimit.RateLimiter, logger *slog.Logger) *Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{
		fetcher: fetcher,
		delay:   delay,
		logger:  logger.With("component", "backfill"),
	}
}

// Fill sets Manufacturer on every product that lacks one. Each product URL
// is fetched at most once per call. A product whose page cannot be read
// keeps an empty manufacturer; only cancellation is returned as an error.
func (b *Backfiller) Fill(ctx context.Context, products []models.Product) error {
	cache := make(map[string]string)
	filled := 0

	for i := range products {
		p := &products[i]
		if p.Manufacturer != "" || p.URL == "" {
			continue
		}

		if manufacturer, ok := cache[p.URL]; ok {
			p.Manufacturer = manufacturer
			continue
		}

		manufacturer, err := b.fetchManufacturer(ctx, p.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("failed to get manufacturer", "url", p.URL, "error", err)
		}

		cache[p.URL] = manufacturer
		p.Manufacturer = manufacturer
		if manufacturer != "" {
			filled++
		}
	}

	b.logger.Debug("backfill completed", "products", len(products), "fetched", len(cache), "filled", filled)
	return nil
}

func (b *Backfiller) fetchManufacturer(ctx context.Context, productURL string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := b.delay.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := b.fetcher.Fetch(ctx, productURL)
		if err == nil {
			var manufacturer string
			manufacturer, err = parser.ExtractManufacturer(resp.Body)
			if err == nil {
				return manufacturer, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if isGone(err) {
			return "", err
		}

		lastErr = err
		b.logger.Debug("product fetch failed", "url", productURL, "attempt", attempt, "error", err)
	}
	return "", fmt.Errorf("giving up after %d attempts: %w", MaxAttempts, lastErr)
}
