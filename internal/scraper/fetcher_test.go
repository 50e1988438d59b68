package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	t.Run("sends browser headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			assert.Equal(t, acceptHeader, r.Header.Get("Accept"))
			assert.Equal(t, "ru,uk;q=0.8,en;q=0.6", r.Header.Get("Accept-Language"))
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		resp, err := testFetcher().Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", resp.Body)
	})

	t.Run("reports final url after redirect", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("moved"))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		resp, err := testFetcher().Fetch(context.Background(), server.URL+"/old")
		require.NoError(t, err)
		assert.Equal(t, "/new", resp.URL.Path)
	})

	t.Run("non-2xx is a transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		defer server.Close()

		resp, err := testFetcher().Fetch(context.Background(), server.URL)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusGone, resp.StatusCode)

		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.True(t, te.Gone())
		assert.False(t, te.ServerError())
		assert.Contains(t, err.Error(), "unexpected status 410")
	})

	t.Run("connection failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		addr := server.URL
		server.Close()

		_, err := testFetcher().Fetch(context.Background(), addr)
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 0, te.StatusCode)
		assert.Error(t, te.Err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := testFetcher().Fetch(ctx, server.URL)
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
