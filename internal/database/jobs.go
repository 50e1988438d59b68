package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trazkul/analytics-prom/internal/models"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// CrawlJob is a batch crawl requested through the API.
type CrawlJob struct {
	ID            uuid.UUID  `json:"id"`
	StartURLs     []string   `json:"start_urls"`
	MaxPages      int        `json:"max_pages"`
	Status        string     `json:"status"`
	ProductsFound int        `json:"products_found"`
	PagesFetched  int        `json:"pages_fetched"`
	FailedURLs    int        `json:"failed_urls"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// JobSummary is what a finished crawl reports back to its job row.
type JobSummary struct {
	PagesFetched int
	FailedURLs   int
	Error        string
}

const jobColumns = `
	id, start_urls, max_pages, status, products_found, pages_fetched,
	failed_urls, error, created_at, started_at, completed_at`

type JobRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db, outbox: NewOutboxRepository(db)}
}

func (r *JobRepository) Create(ctx context.Context, job *CrawlJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	job.CreatedAt = time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO crawl_jobs (id, start_urls, max_pages, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.StartURLs, job.MaxPages, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*CrawlJob, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*CrawlJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*CrawlJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return jobs, nil
}

// ClaimNext marks the oldest pending job as running and returns it. It
// returns nil when nothing is pending. Concurrent workers never claim the
// same job.
func (r *JobRepository) ClaimNext(ctx context.Context) (*CrawlJob, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE crawl_jobs
		SET status = $1, started_at = NOW()
		WHERE id = (
			SELECT id FROM crawl_jobs
			WHERE status = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		JobStatusRunning, JobStatusPending)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Complete stores the job's products, closes the job and queues event in
// one transaction.
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, products []models.Product, summary JobSummary, event *OutboxEvent) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM crawl_products WHERE job_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear job products: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"crawl_products"},
			[]string{"job_id", "idx", "url", "name", "bought", "price", "presence", "seller", "manufacturer"},
			pgx.CopyFromSlice(len(products), func(i int) ([]any, error) {
				p := products[i]
				return []any{id, i + 1, p.URL, p.Name, p.Bought, p.Price, p.Presence, p.Seller, p.Manufacturer}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to store job products: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE crawl_jobs
			SET status = $1, products_found = $2, pages_fetched = $3,
			    failed_urls = $4, error = $5, completed_at = NOW()
			WHERE id = $6`,
			JobStatusCompleted, len(products), summary.PagesFetched,
			summary.FailedURLs, summary.Error, id)
		if err != nil {
			return fmt.Errorf("failed to complete job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("job %s: %w", id, ErrNotFound)
		}

		if event != nil {
			if err := r.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, cause error) error {
	_, err := r.db.Exec(ctx, `
		UPDATE crawl_jobs
		SET status = $1, error = $2, completed_at = NOW()
		WHERE id = $3`,
		JobStatusFailed, cause.Error(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job as failed: %w", err)
	}
	return nil
}

// Products returns a job's products in crawl order.
func (r *JobRepository) Products(ctx context.Context, id uuid.UUID) ([]models.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT url, name, bought, price, presence, seller, manufacturer
		FROM crawl_products
		WHERE job_id = $1
		ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.URL, &p.Name, &p.Bought, &p.Price, &p.Presence, &p.Seller, &p.Manufacturer); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return products, nil
}

func scanJob(row pgx.Row) (*CrawlJob, error) {
	job := &CrawlJob{}
	err := row.Scan(
		&job.ID, &job.StartURLs, &job.MaxPages, &job.Status, &job.ProductsFound,
		&job.PagesFetched, &job.FailedURLs, &job.Error, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
