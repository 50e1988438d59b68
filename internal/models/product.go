package models

import (
	"fmt"
	"strings"
	"time"
)

// Product is one publishable listing item in canonical form.
type Product struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	Bought       string `json:"bought,omitempty"`
	Price        string `json:"price"`
	Presence     string `json:"presence"`
	Seller       string `json:"seller"`
	Manufacturer string `json:"manufacturer"`
}

// SearchResult groups the products found for one interactive query.
type SearchResult struct {
	Query     string    `json:"query"`
	Products  []Product `json:"products"`
	FetchedAt time.Time `json:"fetched_at"`
	Cached    bool      `json:"cached,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// CrawlResult is the outcome of crawling one start URL.
type CrawlResult struct {
	StartURL     string        `json:"start_url"`
	Products     []Product     `json:"products"`
	PagesPlanned int           `json:"pages_planned"`
	PagesFetched int           `json:"pages_fetched"`
	PagesSkipped int           `json:"pages_skipped"`
	StopReason   string        `json:"stop_reason"`
	Duration     time.Duration `json:"duration"`
}

// RenderText formats search results as a plain-text reply.
func RenderText(results []SearchResult) string {
	var b strings.Builder
	for i, result := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Поиск: %s\n", result.Query)
		if len(result.Products) == 0 {
			b.WriteString("  Ничего не найдено или нет доступных товаров.\n")
			continue
		}
		for idx, p := range result.Products {
			fmt.Fprintf(&b, "%d. %s | %s | %s | %s | %s\n   %s\n",
				idx+1, p.Name, p.Price, p.Presence, p.Seller, p.Manufacturer, p.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
