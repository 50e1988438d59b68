package scraper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trazkul/analytics-prom/internal/ratelimit"
)

func rawProduct(id int) map[string]any {
	return map[string]any{
		"catalogPresence": map[string]any{"title": "В наличии"},
		"product": map[string]any{
			"id":      id,
			"name":    fmt.Sprintf("Товар %d", id),
			"urlText": "item",
			"price":   fmt.Sprintf("%d,00 ₴", id*10),
		},
	}
}

func productRange(from, to int) []any {
	products := []any{}
	for id := from; id <= to; id++ {
		products = append(products, rawProduct(id))
	}
	return products
}

func listingHTML(t *testing.T, total, limit int, products []any) string {
	t.Helper()
	state := map[string]any{
		"_FAST_CACHE": map[string]any{
			"CategoryListingQuery:{}": map[string]any{
				"variables": map[string]any{"limit": limit},
				"result": map[string]any{
					"listing": map[string]any{
						"page": map[string]any{"total": total, "products": products},
					},
				},
			},
		},
	}
	blob, err := json.Marshal(state)
	require.NoError(t, err)
	return fmt.Sprintf("<html><body><script>window.ApolloCacheState = %s;</script></body></html>", blob)
}

func productHTML(t *testing.T, manufacturer string) string {
	t.Helper()
	state := map[string]any{
		"_FAST_CACHE": map[string]any{
			"ProductCardQuery:{}": map[string]any{
				"result": map[string]any{
					"product": map[string]any{"manufacturerInfo": map[string]any{"name": manufacturer}},
				},
			},
		},
	}
	blob, err := json.Marshal(state)
	require.NoError(t, err)
	return fmt.Sprintf("<script>window.ApolloCacheState=%s</script>", blob)
}

// site serves canned responses by request path and counts hits.
type site struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

func newSite(t *testing.T) (*site, *httptest.Server) {
	s := &site{routes: map[string]http.HandlerFunc{}, hits: map[string]int{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		handler, ok := s.routes[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return s, server
}

func (s *site) page(path, body string) {
	s.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})
}

func (s *site) status(path string, code int) {
	s.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	})
}

func (s *site) handle(path string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = handler
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func noDelay() *ratelimit.JitterLimiter {
	return ratelimit.NewJitterLimiter(0, 0)
}

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(5*time.Second, "test-agent", "ru,uk;q=0.8,en;q=0.6")
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
