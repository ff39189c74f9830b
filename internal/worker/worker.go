package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/errors"
	"jobpulse/internal/stream"
	"jobpulse/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Enricher is the transform applied to each raw job (C2).
type Enricher interface {
	Enrich(ctx context.Context, raw types.RawJob) (types.EnrichedJob, error)
}

// Store is the slice of the storage collaborator the worker needs.
type Store interface {
	UpsertEnrichedJob(ctx context.Context, job types.EnrichedJob) error
}

// Cache is the best-effort cache collaborator. Implementations log their own
// failures and never return them.
type Cache interface {
	CacheJob(ctx context.Context, job types.EnrichedJob)
}

// Stats are cumulative worker counters.
type Stats struct {
	Processed uint64 `json:"processed"`
	Poisoned  uint64 `json:"poisoned"`
	Retried   uint64 `json:"retried"`
	Failed    uint64 `json:"failed"`
}

// Worker drives the enrichment transform from the durable log: poll,
// decode, enrich, upsert, cache, commit. Redelivery of the same raw job is
// safe because the upsert is idempotent per id.
type Worker struct {
	log      stream.JobLog
	enricher Enricher
	store    Store
	cache    Cache
	cfg      config.WorkerConfig
	poll     time.Duration
	backoff  time.Duration
	logger   *errors.Logger

	stats Stats

	// Test seam.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker wires a stream worker. backoff is the wait applied after an
// exhaustion before retrying the same message, normally the dispatcher's
// per-slot cooldown.
func NewWorker(log stream.JobLog, enricher Enricher, store Store, cache Cache, cfg config.WorkerConfig, pollTimeout, backoff time.Duration, logger *errors.Logger) *Worker {
	return &Worker{
		log:      log,
		enricher: enricher,
		store:    store,
		cache:    cache,
		cfg:      cfg,
		poll:     pollTimeout,
		backoff:  backoff,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Run processes messages until ctx is canceled. Cancellation is honored
// only between messages; mid-message interruption is equivalent to a crash
// and is covered by at-least-once redelivery.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Stream worker started",
		"poll_timeout", w.poll.String(),
		"max_message_retries", w.cfg.MaxMessageRetries)

	for {
		if ctx.Err() != nil {
			w.logger.Info("Stream worker stopping", "stats", w.stats)
			return ctx.Err()
		}

		msg, err := w.log.Poll(ctx, w.poll)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.LogError(err, "Log poll failed; backing off")
			if err := w.sleep(ctx, w.poll); err != nil {
				continue
			}
			continue
		}
		if msg == nil {
			continue
		}

		w.handleMessage(ctx, msg)
	}
}

// handleMessage applies the full decode → enrich → upsert → cache → commit
// sequence to one message.
func (w *Worker) handleMessage(ctx context.Context, msg *stream.Message) {
	tracer := otel.Tracer("jobpulse.worker")
	ctx, span := tracer.Start(ctx, "worker.message")
	defer span.End()
	span.SetAttributes(
		attribute.Int("log.partition", msg.Partition),
		attribute.Int64("log.offset", msg.Offset),
	)

	raw, err := decodeRawJob(msg.Value)
	if err != nil {
		// Poison-message policy: discard rather than block the partition.
		w.stats.Poisoned++
		w.logger.LogError(err, "Poison message skipped",
			"partition", msg.Partition,
			"offset", msg.Offset)
		span.SetAttributes(attribute.Bool("poisoned", true))
		w.commit(ctx, msg)
		return
	}
	span.SetAttributes(attribute.String("job.id", raw.ID))

	job, ok := w.enrichWithRetry(ctx, raw)
	if !ok {
		if ctx.Err() != nil {
			// Shutdown mid-retry: leave uncommitted for redelivery.
			return
		}
		// Retry budget spent on transport/parse errors: commit with a
		// logged failure so the partition keeps moving.
		w.stats.Failed++
		w.logger.Warn("Enrichment abandoned after retries; committing",
			"job_id", raw.ID,
			"partition", msg.Partition,
			"offset", msg.Offset)
		w.commit(ctx, msg)
		return
	}
	if ctx.Err() != nil {
		// Canceled mid-message: leave uncommitted for redelivery.
		return
	}

	if err := w.store.UpsertEnrichedJob(ctx, job); err != nil {
		// Leave the message uncommitted; redelivery after restart retries
		// the whole enrichment against a recovered store.
		w.logger.LogError(err, "Upsert failed; message left uncommitted",
			"job_id", job.ID)
		return
	}

	// Best-effort cache; failure is the cache's problem, not the commit's.
	w.cache.CacheJob(ctx, job)

	w.commit(ctx, msg)
	w.stats.Processed++
	w.logger.Info("Job enriched",
		"job_id", job.ID,
		"skills", len(job.Skills),
		"seniority", job.Seniority)
}

// enrichWithRetry applies the error policy: exhaustion waits out the
// dispatcher backoff and retries the same message without consuming budget;
// transport errors are retried until the configured count of transport
// failures is reached (the first attempt counts); parse errors get one
// retry before the message is treated as poison.
func (w *Worker) enrichWithRetry(ctx context.Context, raw types.RawJob) (types.EnrichedJob, bool) {
	transportRetries := 0
	parseRetries := 0

	for {
		if ctx.Err() != nil {
			return types.EnrichedJob{}, false
		}

		job, err := w.enricher.Enrich(ctx, raw)
		if err == nil {
			return job, true
		}

		switch {
		case errors.IsExhausted(err):
			w.stats.Retried++
			w.logger.Warn("Dispatcher exhausted; waiting before retrying message",
				"job_id", raw.ID,
				"backoff", w.backoff.String())
			if sleepErr := w.sleep(ctx, w.backoff); sleepErr != nil {
				return types.EnrichedJob{}, false
			}

		case errors.IsParse(err):
			parseRetries++
			if parseRetries > 1 {
				w.logger.LogError(err, "Parse failure twice; treating as poison", "job_id", raw.ID)
				return types.EnrichedJob{}, false
			}
			w.stats.Retried++
			w.logger.Warn("Parse failure; retrying once", "job_id", raw.ID)

		default:
			transportRetries++
			if transportRetries >= w.cfg.MaxMessageRetries {
				w.logger.LogError(err, "Transport failure retry budget spent", "job_id", raw.ID)
				return types.EnrichedJob{}, false
			}
			w.stats.Retried++
			w.logger.Warn("Transport failure; retrying message",
				"job_id", raw.ID,
				"attempt", transportRetries,
				"max", w.cfg.MaxMessageRetries)
			if sleepErr := w.sleep(ctx, w.cfg.RetryBackoff); sleepErr != nil {
				return types.EnrichedJob{}, false
			}
		}
	}
}

func (w *Worker) commit(ctx context.Context, msg *stream.Message) {
	if err := w.log.Commit(ctx, msg); err != nil {
		w.logger.LogError(err, "Commit failed; message will redeliver",
			"partition", msg.Partition,
			"offset", msg.Offset)
	}
}

// GetStats returns cumulative worker counters.
func (w *Worker) GetStats() Stats {
	return w.stats
}

// decodeRawJob parses a log payload into a RawJob. A payload without an id
// cannot be stored idempotently and counts as undecodable.
func decodeRawJob(payload []byte) (types.RawJob, error) {
	var raw types.RawJob
	if err := json.Unmarshal(payload, &raw); err != nil {
		return types.RawJob{}, errors.NewParseError(errors.ErrCodeDecodeFailed,
			"log payload is not a raw job", err)
	}
	if strings.TrimSpace(raw.ID) == "" {
		return types.RawJob{}, errors.NewParseError(errors.ErrCodeDecodeFailed,
			"raw job has no id", nil)
	}
	return raw, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
