package parser

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statePage(t *testing.T, fastCache map[string]any) string {
	t.Helper()
	blob, err := json.Marshal(map[string]any{"_FAST_CACHE": fastCache})
	require.NoError(t, err)
	return `<html><head><script>var x = 1;</script><script>window.ApolloCacheState = ` +
		string(blob) + `;window.other = {};</script></head><body></body></html>`
}

func listingValue(products ...any) map[string]any {
	if products == nil {
		products = []any{}
	}
	return map[string]any{
		"result": map[string]any{
			"listing": map[string]any{
				"page": map[string]any{"products": products, "total": len(products)},
			},
		},
	}
}

func TestExtractListingEntry(t *testing.T) {
	t.Run("single matching entry", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"ROOT_QUERY":                    map[string]any{"foo": "bar"},
			"SearchProductsListingQuery:{}": listingValue(map[string]any{"id": 1}),
		})

		entry, err := ExtractListingEntry(html)
		require.NoError(t, err)
		assert.Equal(t, "SearchProductsListingQuery:{}", entry.Key)
		assert.Len(t, entry.Products, 1)
		assert.NotNil(t, entry.Listing)
		assert.NotNil(t, entry.Page)
	})

	t.Run("priority token wins over key order", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"A_CategoryListingQuery":       listingValue(),
			"B_SearchProductsListingQuery": listingValue(),
			"C_CompanyListingQuery":        listingValue(),
		})

		for i := 0; i < 20; i++ {
			entry, err := ExtractListingEntry(html)
			require.NoError(t, err)
			assert.Equal(t, "C_CompanyListingQuery", entry.Key)
		}
	})

	t.Run("ties break on smallest key", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"SearchProductsListingQuery:z": listingValue(),
			"SearchProductsListingQuery:a": listingValue(),
			"SomethingElse":                listingValue(),
		})

		entry, err := ExtractListingEntry(html)
		require.NoError(t, err)
		assert.Equal(t, "SearchProductsListingQuery:a", entry.Key)
	})

	t.Run("entries without a product array are ignored", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"CompanyListingQuery:broken": map[string]any{
				"result": map[string]any{"listing": map[string]any{"page": map[string]any{"products": "nope"}}},
			},
			"CategoryListingQuery:ok": listingValue(),
		})

		entry, err := ExtractListingEntry(html)
		require.NoError(t, err)
		assert.Equal(t, "CategoryListingQuery:ok", entry.Key)
	})

	t.Run("marker outside a script element", func(t *testing.T) {
		html := `window.ApolloCacheState = {"_FAST_CACHE": {"CategoryListingQuery": {"result": {"listing": {"page": {"products": []}}}}}};`

		entry, err := ExtractListingEntry(html)
		require.NoError(t, err)
		assert.Equal(t, "CategoryListingQuery", entry.Key)
		assert.Empty(t, entry.Products)
	})
}

func TestExtractListingEntryErrors(t *testing.T) {
	t.Run("marker not found", func(t *testing.T) {
		_, err := ExtractListingEntry(`<html><script>window.SomethingElse = {}</script></html>`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMarkerNotFound))
		assert.Equal(t, "marker not found", err.Error())
	})

	t.Run("malformed cache", func(t *testing.T) {
		_, err := ExtractListingEntry(`<script>window.ApolloCacheState = {"_FAST_CACHE": {bad</script>`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedCache))
		assert.Contains(t, err.Error(), "malformed cache")

		var extractionErr *ExtractionError
		require.True(t, errors.As(err, &extractionErr))
		assert.Error(t, extractionErr.Err)
	})

	t.Run("no listing lists scanned keys", func(t *testing.T) {
		html := statePage(t, map[string]any{
			"b": map[string]any{},
			"a": map[string]any{"result": map[string]any{}},
		})

		_, err := ExtractListingEntry(html)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoListing))
		assert.Equal(t, "no listing found (keys: a, b)", err.Error())

		var extractionErr *ExtractionError
		require.True(t, errors.As(err, &extractionErr))
		assert.Equal(t, []string{"a", "b"}, extractionErr.Keys)
	})

	t.Run("missing fast cache", func(t *testing.T) {
		_, err := ExtractListingEntry(`<script>window.ApolloCacheState = {"ROOT": {}};</script>`)
		assert.True(t, errors.Is(err, ErrNoListing))
	})
}

func TestDecodeStateKeepsNumbers(t *testing.T) {
	state, err := DecodeState(`<script>window.ApolloCacheState={"n": 12345678901234567890};</script>`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), state["n"])
}

func TestDecodeStateScriptCutShort(t *testing.T) {
	// json.Marshal would escape "<", so the page is written out by hand.
	html := `<html><body><script>window.ApolloCacheState = {"_FAST_CACHE": {"CategoryListingQuery:{}": ` +
		`{"result": {"listing": {"page": {"total": 1, "products": [{"product": {"name": "a</script>b"}}]}}}}}};` +
		`</script></body></html>`

	entry, err := ExtractListingEntry(html)
	require.NoError(t, err)
	require.Len(t, entry.Products, 1)

	product := entry.Products[0].(map[string]any)["product"].(map[string]any)
	assert.Equal(t, "a</script>b", product["name"])
}

func TestExtractManufacturer(t *testing.T) {
	tests := []struct {
		name      string
		fastCache map[string]any
		expected  string
	}{
		{
			name: "manufacturer present",
			fastCache: map[string]any{
				"ProductQuery:1": map[string]any{
					"result": map[string]any{
						"product": map[string]any{"manufacturerInfo": map[string]any{"name": "  Bosch "}},
					},
				},
			},
			expected: "Bosch",
		},
		{
			name: "first key with a manufacturer wins",
			fastCache: map[string]any{
				"b": map[string]any{"result": map[string]any{"product": map[string]any{"manufacturerInfo": map[string]any{"name": "Second"}}}},
				"a": map[string]any{"result": map[string]any{"product": map[string]any{"manufacturerInfo": map[string]any{"name": "First"}}}},
				"0": map[string]any{"result": map[string]any{"product": map[string]any{"name": "no manufacturer"}}},
			},
			expected: "First",
		},
		{
			name:      "no product entries",
			fastCache: map[string]any{"ROOT_QUERY": map[string]any{}},
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := ExtractManufacturer(statePage(t, tt.fastCache))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}

	t.Run("marker missing", func(t *testing.T) {
		_, err := ExtractManufacturer("<html></html>")
		assert.True(t, errors.Is(err, ErrMarkerNotFound))
	})
}
