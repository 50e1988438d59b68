package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func availableProduct(id int, slug string) map[string]any {
	return map[string]any{
		"catalogPresence": map[string]any{"title": "в наличии"},
		"companyId":       "5",
		"product": map[string]any{
			"id":      id,
			"urlText": slug,
			"price":   "100",
		},
	}
}

func TestParsePage(t *testing.T) {
	pageURL := mustURL(t, "https://prom.ua/ua/Dreli;2.html?a=1")

	t.Run("products limit and total", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"CategoryListingQuery:{}": map[string]any{
				"variables": map[string]any{"limit": 12},
				"result": map[string]any{
					"listing": map[string]any{
						"limit":     48,
						"companies": map[string]any{"5": map[string]any{"name": "Shop"}},
						"page": map[string]any{
							"total": 30,
							"products": []any{
								availableProduct(1, "a"),
								map[string]any{"catalogPresence": map[string]any{"value": "presence_wait"}, "product": map[string]any{"price": "1", "url": "/p2-b.html"}},
								availableProduct(3, "c"),
							},
						},
					},
				},
			},
		})

		result, err := ParsePage(html, pageURL)
		require.NoError(t, err)
		assert.Equal(t, 3, result.RawCount)
		assert.Equal(t, 12, result.Limit)
		assert.Equal(t, 30, result.Total)
		require.Len(t, result.Products, 2)
		assert.Equal(t, "https://prom.ua/p1-a.html", result.Products[0].URL)
		assert.Equal(t, "Shop", result.Products[0].Seller)
		assert.Equal(t, "https://prom.ua/p3-c.html", result.Products[1].URL)
	})

	t.Run("listing limit and wrapped total", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"SearchProductsListingQuery:{}": map[string]any{
				"result": map[string]any{
					"listing": map[string]any{
						"limit": 24,
						"page": map[string]any{
							"total":    map[string]any{"value": 100},
							"products": []any{availableProduct(1, "a")},
						},
					},
				},
			},
		})

		result, err := ParsePage(html, pageURL)
		require.NoError(t, err)
		assert.Equal(t, 24, result.Limit)
		assert.Equal(t, 100, result.Total)
	})

	t.Run("limit falls back to product count", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"CategoryListingQuery": listingValue(availableProduct(1, "a"), availableProduct(2, "b")),
		})

		result, err := ParsePage(html, pageURL)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Limit)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("empty page", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"CategoryListingQuery": map[string]any{
				"result": map[string]any{"listing": map[string]any{"page": map[string]any{"products": []any{}}}},
			},
		})

		result, err := ParsePage(html, pageURL)
		require.NoError(t, err)
		assert.Equal(t, 0, result.RawCount)
		assert.Equal(t, 1, result.Limit)
		assert.Equal(t, 0, result.Total)
		assert.Empty(t, result.Products)
	})

	t.Run("extraction errors pass through", func(t *testing.T) {
		_, err := ParsePage("<html></html>", pageURL)
		assert.ErrorIs(t, err, ErrMarkerNotFound)
	})
}
