package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trazkul/analytics-prom/internal/database"
	"github.com/trazkul/analytics-prom/internal/jobs"
	"github.com/trazkul/analytics-prom/internal/models"
	"github.com/trazkul/analytics-prom/internal/scraper"
)

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) SearchAll(ctx context.Context, text string) ([]models.SearchResult, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SearchResult), args.Error(1)
}

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) CreateJob(ctx context.Context, startURLs []string, maxPages int) (*database.CrawlJob, error) {
	args := m.Called(ctx, startURLs, maxPages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.CrawlJob), args.Error(1)
}

func (m *MockJobService) GetJob(ctx context.Context, id uuid.UUID) (*database.CrawlJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.CrawlJob), args.Error(1)
}

func (m *MockJobService) ListJobs(ctx context.Context) ([]*database.CrawlJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*database.CrawlJob), args.Error(1)
}

func (m *MockJobService) JobProducts(ctx context.Context, id uuid.UUID) ([]models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

type staticBacklog struct {
	pending, dead int64
	err           error
}

func (b staticBacklog) Backlog(context.Context) (int64, int64, error) {
	return b.pending, b.dead, b.err
}

func newTestRouter(search SearchService, jobService JobService, backlog Backlog) http.Handler {
	r := chi.NewRouter()
	NewHandlers(search, jobService, backlog, slog.New(slog.DiscardHandler)).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSearch(t *testing.T) {
	results := []models.SearchResult{{
		Query:    "дрель",
		Products: []models.Product{{Name: "Дрель", Price: "999", URL: "https://prom.ua/p1.html"}},
	}}

	t.Run("json", func(t *testing.T) {
		search := new(MockSearchService)
		search.On("SearchAll", mock.Anything, "дрель").Return(results, nil)

		rec := do(t, newTestRouter(search, nil, nil), http.MethodPost, "/api/v1/search", `{"query":"дрель"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[SearchResponse](t, rec)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Дрель", resp.Results[0].Products[0].Name)
		assert.Empty(t, resp.Text)
	})

	t.Run("text rendering", func(t *testing.T) {
		search := new(MockSearchService)
		search.On("SearchAll", mock.Anything, "дрель").Return(results, nil)

		rec := do(t, newTestRouter(search, nil, nil), http.MethodPost, "/api/v1/search?format=text", `{"query":"дрель"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, decode[SearchResponse](t, rec).Text, "Поиск: дрель")
	})

	t.Run("empty query", func(t *testing.T) {
		search := new(MockSearchService)
		search.On("SearchAll", mock.Anything, " ").Return(nil, scraper.ErrEmptyQuery)

		rec := do(t, newTestRouter(search, nil, nil), http.MethodPost, "/api/v1/search", `{"query":" "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := do(t, newTestRouter(new(MockSearchService), nil, nil), http.MethodPost, "/api/v1/search", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateCrawl(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		job := &database.CrawlJob{ID: uuid.New(), Status: database.JobStatusPending}
		jobService := new(MockJobService)
		jobService.On("CreateJob", mock.Anything, []string{"https://prom.ua/a.html"}, 2).Return(job, nil)

		rec := do(t, newTestRouter(nil, jobService, nil), http.MethodPost, "/api/v1/crawls",
			`{"urls":["https://prom.ua/a.html"],"max_pages":2}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		resp := decode[CreateCrawlResponse](t, rec)
		assert.Equal(t, job.ID.String(), resp.JobID)
		assert.Equal(t, database.JobStatusPending, resp.Status)
	})

	t.Run("validation error", func(t *testing.T) {
		jobService := new(MockJobService)
		jobService.On("CreateJob", mock.Anything, mock.Anything, 0).Return(nil, jobs.ErrNoStartURLs)

		rec := do(t, newTestRouter(nil, jobService, nil), http.MethodPost, "/api/v1/crawls", `{"urls":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store error", func(t *testing.T) {
		jobService := new(MockJobService)
		jobService.On("CreateJob", mock.Anything, mock.Anything, 0).Return(nil, errors.New("db down"))

		rec := do(t, newTestRouter(nil, jobService, nil), http.MethodPost, "/api/v1/crawls", `{"urls":["https://prom.ua/a.html"]}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestListCrawls(t *testing.T) {
	jobService := new(MockJobService)
	jobService.On("ListJobs", mock.Anything).Return(nil, nil)

	rec := do(t, newTestRouter(nil, jobService, nil), http.MethodGet, "/api/v1/crawls", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetCrawl(t *testing.T) {
	id := uuid.New()

	t.Run("found", func(t *testing.T) {
		jobService := new(MockJobService)
		jobService.On("GetJob", mock.Anything, id).Return(&database.CrawlJob{ID: id, Status: database.JobStatusRunning}, nil)

		rec := do(t, newTestRouter(nil, jobService, nil), http.MethodGet, "/api/v1/crawls/"+id.String(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, database.JobStatusRunning, decode[database.CrawlJob](t, rec).Status)
	})

	t.Run("not found", func(t *testing.T) {
		jobService := new(MockJobService)
		jobService.On("GetJob", mock.Anything, id).Return(nil, database.ErrNotFound)

		rec := do(t, newTestRouter(nil, jobService, nil), http.MethodGet, "/api/v1/crawls/"+id.String(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		jobService := new(MockJobService)

		rec := do(t, newTestRouter(nil, jobService, nil), http.MethodGet, "/api/v1/crawls/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		jobService.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
	})
}

func TestCrawlProductsAndExport(t *testing.T) {
	id := uuid.New()
	products := []models.Product{
		{URL: "https://prom.ua/p1.html", Name: "Дрель", Price: "999", Presence: "в наличии"},
	}

	jobService := new(MockJobService)
	jobService.On("JobProducts", mock.Anything, id).Return(products, nil)
	router := newTestRouter(nil, jobService, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/crawls/"+id.String()+"/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, products, decode[[]models.Product](t, rec))

	rec = do(t, router, http.MethodGet, "/api/v1/crawls/"+id.String()+"/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "idx,url,name,bought,price,presence,manufacturer", lines[0])
	assert.Equal(t, "1,https://prom.ua/p1.html,Дрель,,999,в наличии,", lines[1])
}

func TestExportUnknownCrawl(t *testing.T) {
	id := uuid.New()
	jobService := new(MockJobService)
	jobService.On("JobProducts", mock.Anything, id).Return(nil, database.ErrNotFound)

	rec := do(t, newTestRouter(nil, jobService, nil), http.MethodGet, "/api/v1/crawls/"+id.String()+"/export.csv", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		backlog Backlog
		code    int
		status  string
	}{
		{"no relay", nil, http.StatusOK, "ok"},
		{"healthy", staticBacklog{pending: 3}, http.StatusOK, "ok"},
		{"pending backlog", staticBacklog{pending: 5000}, http.StatusOK, "warning"},
		{"dead letters", staticBacklog{dead: 500}, http.StatusServiceUnavailable, "error"},
		{"backlog unavailable", staticBacklog{err: errors.New("db down")}, http.StatusOK, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(nil, nil, tt.backlog), http.MethodGet, "/health", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, decode[map[string]any](t, rec)["status"])
		})
	}
}
