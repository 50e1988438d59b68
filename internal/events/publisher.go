package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trazkul/analytics-prom/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeCrawlCompleted is published when a crawl job has stored its products
	EventTypeCrawlCompleted EventType = "CRAWL_COMPLETED"

	aggregateCrawlJob = "crawl_job"
)

// CrawlCompletedPayload is the body of a CRAWL_COMPLETED event.
type CrawlCompletedPayload struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	JobID         string    `json:"job_id"`
	StartURLs     []string  `json:"start_urls"`
	ProductsFound int       `json:"products_found"`
	PagesFetched  int       `json:"pages_fetched"`
	FailedURLs    []string  `json:"failed_urls,omitempty"`
	Source        string    `json:"source"`
}

// Builder turns job outcomes into outbox events for one target stream.
type Builder struct {
	stream string
}

func NewBuilder(stream string) *Builder {
	if stream == "" {
		stream = database.DefaultStream
	}
	return &Builder{stream: stream}
}

// CrawlCompleted builds the outbox event announcing a finished job. The
// event is stored in the same transaction as the job's products.
func (b *Builder) CrawlCompleted(payload *CrawlCompletedPayload) (*database.OutboxEvent, error) {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeCrawlCompleted)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	if payload.Source == "" {
		payload.Source = "crawler"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: aggregateCrawlJob,
		AggregateID:   payload.JobID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  b.stream,
	}, nil
}
