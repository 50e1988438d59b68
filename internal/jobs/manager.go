package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/trazkul/analytics-prom/internal/batch"
	"github.com/trazkul/analytics-prom/internal/config"
	"github.com/trazkul/analytics-prom/internal/database"
	"github.com/trazkul/analytics-prom/internal/events"
	"github.com/trazkul/analytics-prom/internal/models"
)

var (
	ErrNoStartURLs     = errors.New("at least one start url is required")
	ErrInvalidURL      = errors.New("invalid start url")
	ErrInvalidMaxPages = errors.New("max_pages cannot be negative")
)

const listLimit = 100

// Store persists crawl jobs and their products.
type Store interface {
	Create(ctx context.Context, job *database.CrawlJob) error
	Get(ctx context.Context, id uuid.UUID) (*database.CrawlJob, error)
	List(ctx context.Context, limit int) ([]*database.CrawlJob, error)
	ClaimNext(ctx context.Context) (*database.CrawlJob, error)
	Complete(ctx context.Context, id uuid.UUID, products []models.Product, summary database.JobSummary, event *database.OutboxEvent) error
	Fail(ctx context.Context, id uuid.UUID, cause error) error
	Products(ctx context.Context, id uuid.UUID) ([]models.Product, error)
}

type BatchRunner interface {
	Run(ctx context.Context, startURLs []string) (*batch.Report, error)
}

// RunnerFactory builds the runner for a job's page limit.
type RunnerFactory func(maxPages int) BatchRunner

type Manager struct {
	store        Store
	newRunner    RunnerFactory
	events       *events.Builder
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewManager(store Store, newRunner RunnerFactory, builder *events.Builder, pollInterval time.Duration, logger *slog.Logger) *Manager {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Manager{
		store:        store,
		newRunner:    newRunner,
		events:       builder,
		pollInterval: pollInterval,
		logger:       logger.With("component", "job_manager"),
	}
}

// CreateJob queues a crawl of startURLs. maxPages of zero means no limit.
func (m *Manager) CreateJob(ctx context.Context, startURLs []string, maxPages int) (*database.CrawlJob, error) {
	urls := config.NormalizeURLs(startURLs)
	if len(urls) == 0 {
		return nil, ErrNoStartURLs
	}
	for _, raw := range urls {
		if err := validateStartURL(raw); err != nil {
			return nil, err
		}
	}
	if maxPages < 0 {
		return nil, ErrInvalidMaxPages
	}

	job := &database.CrawlJob{StartURLs: urls, MaxPages: maxPages}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Info("job created", "id", job.ID, "urls", len(urls), "max_pages", maxPages)
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (*database.CrawlJob, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ListJobs(ctx context.Context) ([]*database.CrawlJob, error) {
	return m.store.List(ctx, listLimit)
}

// JobProducts returns the stored products of an existing job.
func (m *Manager) JobProducts(ctx context.Context, id uuid.UUID) ([]models.Product, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Products(ctx, id)
}

func validateStartURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidURL, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w %q: absolute http(s) url required", ErrInvalidURL, raw)
	}
	return nil
}
