package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trazkul/analytics-prom/internal/database"
	"github.com/trazkul/analytics-prom/internal/jobs"
	"github.com/trazkul/analytics-prom/internal/models"
	"github.com/trazkul/analytics-prom/internal/scraper"
	"github.com/trazkul/analytics-prom/internal/storage"
)

const (
	pendingWarnThreshold = 1000
	deadLetterThreshold  = 100
)

type SearchService interface {
	SearchAll(ctx context.Context, text string) ([]models.SearchResult, error)
}

type JobService interface {
	CreateJob(ctx context.Context, startURLs []string, maxPages int) (*database.CrawlJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*database.CrawlJob, error)
	ListJobs(ctx context.Context) ([]*database.CrawlJob, error)
	JobProducts(ctx context.Context, id uuid.UUID) ([]models.Product, error)
}

// Backlog reports outbox events still waiting for the relay.
type Backlog interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

type Handlers struct {
	search  SearchService
	jobs    JobService
	backlog Backlog
	logger  *slog.Logger
}

func NewHandlers(search SearchService, jobs JobService, backlog Backlog, logger *slog.Logger) *Handlers {
	return &Handlers{
		search:  search,
		jobs:    jobs,
		backlog: backlog,
		logger:  logger.With("component", "api"),
	}
}

// Routes mounts the API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", h.Search)

		r.Post("/crawls", h.CreateCrawl)
		r.Get("/crawls", h.ListCrawls)
		r.Get("/crawls/{jobID}", h.GetCrawl)
		r.Get("/crawls/{jobID}/products", h.GetCrawlProducts)
		r.Get("/crawls/{jobID}/export.csv", h.ExportCrawl)
	})
}

// SearchRequest holds free text with one or more queries.
type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResponse struct {
	Results []models.SearchResult `json:"results"`
	Text    string                `json:"text,omitempty"`
}

// Search runs every query in the request. ?format=text adds the plain-text
// rendering to the response.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.search.SearchAll(r.Context(), req.Query)
	if errors.Is(err, scraper.ErrEmptyQuery) {
		h.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if err != nil {
		h.logger.Error("search failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := SearchResponse{Results: results}
	if r.URL.Query().Get("format") == "text" {
		resp.Text = models.RenderText(results)
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// CreateCrawlRequest queues a batch crawl.
type CreateCrawlRequest struct {
	URLs     []string `json:"urls"`
	MaxPages int      `json:"max_pages"`
}

type CreateCrawlResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (h *Handlers) CreateCrawl(w http.ResponseWriter, r *http.Request) {
	var req CreateCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.URLs, req.MaxPages)
	if errors.Is(err, jobs.ErrNoStartURLs) || errors.Is(err, jobs.ErrInvalidURL) || errors.Is(err, jobs.ErrInvalidMaxPages) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateCrawlResponse{
		JobID:  job.ID.String(),
		Status: job.Status,
	})
}

func (h *Handlers) ListCrawls(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*database.CrawlJob{}
	}

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetCrawl(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) GetCrawlProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	products, err := h.jobs.JobProducts(r.Context(), id)
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}

	h.respondJSON(w, http.StatusOK, products)
}

// ExportCrawl streams a job's products in the CSV sink format.
func (h *Handlers) ExportCrawl(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	products, err := h.jobs.JobProducts(r.Context(), id)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "crawl-"+id.String()+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := storage.WriteCSV(w, products); err != nil {
		h.logger.Error("failed to write csv", "job", id, "error", err)
	}
}

// Health reports the outbox backlog. Too many dead letters mark the
// service unavailable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.backlog != nil {
		pending, dead, err := h.backlog.Backlog(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
			health["status"] = "degraded"
			health["message"] = "outbox backlog unavailable"
		} else {
			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": dead,
			}
			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "high number of pending outbox events"
			}
			if dead > deadLetterThreshold {
				health["status"] = "error"
				health["message"] = "high number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) respondJobError(w http.ResponseWriter, err error) {
	if jobs.IsNotFound(err) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.logger.Error("job lookup failed", "error", err)
	h.respondError(w, http.StatusInternalServerError, "failed to load job")
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
