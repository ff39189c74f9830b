package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobpulse/internal/errors"
	"jobpulse/internal/types"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix  = "job:"
	recentJobsKey = "jobs:recent"
)

// JobCache is the best-effort cache collaborator. Failures are logged and
// never block the pipeline; the cache holds enriched job metadata (without
// embeddings) plus a capped recent-jobs index.
type JobCache struct {
	client     *redis.Client
	ttl        time.Duration
	recentSize int64
	logger     *errors.Logger
}

// NewJobCache parses url, verifies connectivity, and returns the cache.
func NewJobCache(ctx context.Context, url string, ttl time.Duration, recentSize int64, logger *errors.Logger) (*JobCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", url, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &JobCache{
		client:     client,
		ttl:        ttl,
		recentSize: recentSize,
		logger:     logger,
	}, nil
}

// CacheJob stores job under its id with the configured TTL and pushes the id
// onto the capped recent list. Best-effort: errors are logged, not returned.
func (c *JobCache) CacheJob(ctx context.Context, job types.EnrichedJob) {
	// Embeddings are large and useless to cache readers.
	job.Embedding = nil

	payload, err := json.Marshal(job)
	if err != nil {
		c.logger.Warn("Cache encode failed; skipping", "job_id", job.ID, "error", err.Error())
		return
	}

	key := jobKeyPrefix + job.ID
	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, payload, c.ttl)
	pipe.LPush(ctx, recentJobsKey, job.ID)
	pipe.LTrim(ctx, recentJobsKey, 0, c.recentSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Cache write failed; continuing", "job_id", job.ID, "error", err.Error())
	}
}

// GetJob reads a cached job. Returns (nil, nil) on miss or any cache error.
func (c *JobCache) GetJob(ctx context.Context, id string) (*types.EnrichedJob, error) {
	payload, err := c.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Warn("Cache read failed", "job_id", id, "error", err.Error())
		return nil, nil
	}

	var job types.EnrichedJob
	if err := json.Unmarshal(payload, &job); err != nil {
		c.logger.Warn("Cache decode failed", "job_id", id, "error", err.Error())
		return nil, nil
	}
	return &job, nil
}

// RecentJobIDs returns the ids of the most recently cached jobs.
func (c *JobCache) RecentJobIDs(ctx context.Context, n int64) []string {
	if n <= 0 || n > c.recentSize {
		n = c.recentSize
	}
	ids, err := c.client.LRange(ctx, recentJobsKey, 0, n-1).Result()
	if err != nil {
		c.logger.Warn("Recent jobs read failed", "error", err.Error())
		return nil
	}
	return ids
}

// Ping verifies connectivity for health checks.
func (c *JobCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *JobCache) Close() error {
	return c.client.Close()
}
