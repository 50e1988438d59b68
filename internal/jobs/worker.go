package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trazkul/analytics-prom/internal/batch"
	"github.com/trazkul/analytics-prom/internal/database"
	"github.com/trazkul/analytics-prom/internal/events"
)

// statusTimeout bounds the final status write of a job interrupted by
// shutdown.
const statusTimeout = 5 * time.Second

// StartWorker runs pending jobs until ctx is done.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started", "interval", m.pollInterval)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			for m.processNextJob(ctx) {
			}
		}
	}
}

// processNextJob runs one pending job and reports whether there was one.
func (m *Manager) processNextJob(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	job, err := m.store.ClaimNext(ctx)
	if err != nil {
		m.logger.Error("failed to claim job", "error", err)
		return false
	}
	if job == nil {
		return false
	}

	logger := m.logger.With("job", job.ID)
	logger.Info("processing job", "urls", len(job.StartURLs), "max_pages", job.MaxPages)

	if err := m.processJob(ctx, job); err != nil {
		logger.Error("job failed", "error", err)

		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
		defer cancel()
		if err := m.store.Fail(failCtx, job.ID, err); err != nil {
			logger.Error("failed to mark job as failed", "error", err)
		}
		return true
	}

	logger.Info("job completed")
	return true
}

func (m *Manager) processJob(ctx context.Context, job *database.CrawlJob) error {
	report, err := m.newRunner(job.MaxPages).Run(ctx, job.StartURLs)
	if err != nil {
		return err
	}
	if len(report.Results) == 0 && len(report.Failures) > 0 {
		return fmt.Errorf("all start urls failed: %s", joinFailures(report.Failures))
	}

	failed := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		failed = append(failed, f.URL)
	}

	event, err := m.events.CrawlCompleted(&events.CrawlCompletedPayload{
		JobID:         job.ID.String(),
		StartURLs:     job.StartURLs,
		ProductsFound: len(report.Products),
		PagesFetched:  report.PagesFetched(),
		FailedURLs:    failed,
	})
	if err != nil {
		return err
	}

	summary := database.JobSummary{
		PagesFetched: report.PagesFetched(),
		FailedURLs:   len(report.Failures),
		Error:        joinFailures(report.Failures),
	}
	if err := m.store.Complete(ctx, job.ID, report.Products, summary, event); err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}
	return nil
}

func joinFailures(failures []batch.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
