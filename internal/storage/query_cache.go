package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trazkul/analytics-prom/internal/models"
)

const queryKeyPrefix = "prom:query:"

// RedisClient is the part of the Redis client the query cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// QueryCache keeps search results in Redis for a fixed TTL. A non-positive
// TTL disables caching.
type QueryCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewQueryCache(client RedisClient, ttl time.Duration) *QueryCache {
	return &QueryCache{client: client, ttl: ttl}
}

func (c *QueryCache) Get(ctx context.Context, query string) (*models.SearchResult, bool, error) {
	if c.ttl <= 0 {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, queryKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached query: %w", err)
	}

	var result models.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached query: %w", err)
	}
	return &result, true, nil
}

func (c *QueryCache) Set(ctx context.Context, query string, result *models.SearchResult) error {
	if c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode query result: %w", err)
	}

	if err := c.client.Set(ctx, queryKey(query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache query: %w", err)
	}
	return nil
}

func queryKey(query string) string {
	return queryKeyPrefix + strings.ToLower(strings.TrimSpace(query))
}
