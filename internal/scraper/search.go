package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/trazkul/analytics-prom/internal/models"
)

var queryDelimiters = regexp.MustCompile(`[,.\n;]+`)

// ResultCache stores search results between identical queries.
type ResultCache interface {
	Get(ctx context.Context, query string) (*models.SearchResult, bool, error)
	Set(ctx context.Context, query string, result *models.SearchResult) error
}

// Service answers interactive searches with the first page of results.
type Service struct {
	searchURL string
	crawler   *Crawler
	cache     ResultCache
	logger    *slog.Logger
}

// NewService creates a search service. cache may be nil.
func NewService(searchURL string, crawler *Crawler, cache ResultCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		searchURL: searchURL,
		crawler:   crawler,
		cache:     cache,
		logger:    logger.With("component", "search"),
	}
}

// Search returns the publishable products on the first result page for
// query. Cache failures are logged and otherwise ignored.
func (s *Service) Search(ctx context.Context, query string) (*models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, query)
		if err != nil {
			s.logger.Warn("cache lookup failed", "query", query, "error", err)
		} else if ok {
			cached.Cached = true
			return cached, nil
		}
	}

	searchURL, err := s.queryURL(query)
	if err != nil {
		return nil, err
	}

	page, err := s.crawler.FetchPage(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	result := &models.SearchResult{
		Query:     query,
		Products:  page.Products,
		FetchedAt: time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, query, result); err != nil {
			s.logger.Warn("cache store failed", "query", query, "error", err)
		}
	}

	s.logger.Info("search completed", "query", query, "products", len(result.Products))
	return result, nil
}

// SearchAll runs Search for every query in text. A failed query is reported
// in its result's Error field and does not stop the others.
func (s *Service) SearchAll(ctx context.Context, text string) ([]models.SearchResult, error) {
	queries := SplitQueries(text)
	if len(queries) == 0 {
		return nil, ErrEmptyQuery
	}

	results := make([]models.SearchResult, 0, len(queries))
	for _, query := range queries {
		result, err := s.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			s.logger.Warn("search failed", "query", query, "error", err)
			results = append(results, models.SearchResult{
				Query:     query,
				Products:  []models.Product{},
				FetchedAt: time.Now().UTC(),
				Error:     err.Error(),
			})
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

func (s *Service) queryURL(query string) (string, error) {
	u, err := url.Parse(s.searchURL)
	if err != nil {
		return "", fmt.Errorf("invalid search URL: %w", err)
	}
	params := u.Query()
	params.Set("search_term", query)
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// SplitQueries splits free text into search queries on commas, periods,
// semicolons and newlines. Duplicates are dropped case-insensitively,
// keeping the first spelling.
func SplitQueries(text string) []string {
	var queries []string
	seen := make(map[string]struct{})
	for _, part := range queryDelimiters.Split(text, -1) {
		query := strings.TrimSpace(part)
		if query == "" {
			continue
		}
		key := strings.ToLower(query)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, query)
	}
	return queries
}
