package parser

import (
	"net/url"

	"github.com/trazkul/analytics-prom/internal/models"
)

// PageResult is one parsed listing page.
type PageResult struct {
	Products []models.Product
	// RawCount is the number of entries on the page before rejection.
	RawCount int
	Limit    int
	Total    int
}

// ParsePage extracts and normalizes the listing embedded in a page fetched
// from pageURL. Relative product links resolve against pageURL's origin.
func ParsePage(html string, pageURL *url.URL) (*PageResult, error) {
	entry, err := ExtractListingEntry(html)
	if err != nil {
		return nil, err
	}

	base := originOf(pageURL)
	companies := BuildCompanyLookup(entry)

	products := make([]models.Product, 0, len(entry.Products))
	for _, raw := range entry.Products {
		if product, ok := NormalizeProduct(raw, base, companies); ok {
			products = append(products, product)
		}
	}

	return &PageResult{
		Products: products,
		RawCount: len(entry.Products),
		Limit:    declaredLimit(entry),
		Total:    declaredTotal(entry),
	}, nil
}

// declaredLimit never returns zero so page counts can divide by it.
func declaredLimit(entry *ListingEntry) int {
	if limit, ok := positiveInt(objectAt(entry.Raw, "variables")["limit"]); ok {
		return limit
	}
	if limit, ok := positiveInt(entry.Listing["limit"]); ok {
		return limit
	}
	if len(entry.Products) > 0 {
		return len(entry.Products)
	}
	return 1
}

func declaredTotal(entry *ListingEntry) int {
	total := entry.Page["total"]
	if wrapped := asObject(total); wrapped != nil {
		if count, ok := positiveInt(wrapped["count"]); ok {
			return count
		}
		total = wrapped["value"]
	}
	if count, ok := positiveInt(total); ok {
		return count
	}
	return 0
}

// originOf keeps only the scheme and host of u.
func originOf(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}
