package worker

import (
	"context"

	"jobpulse/internal/config"
	"jobpulse/internal/errors"
	"jobpulse/internal/types"

	"github.com/robfig/cron/v3"
)

// BackfillStore is the storage slice the backfill needs: rows whose
// embedding is missing or mis-sized, plus the idempotent upsert.
type BackfillStore interface {
	Store
	QueryNeedingBackfill(ctx context.Context, dim, limit int) ([]types.EnrichedJob, error)
}

// Backfiller re-enriches stored jobs that carry no usable embedding
// (legacy rows, rows written before a dimensionality change). It runs the
// same transform and upsert as the stream worker, so a backfilled row is
// indistinguishable from a freshly enriched one except for its preserved
// created_at.
type Backfiller struct {
	store    BackfillStore
	enricher Enricher
	cfg      config.BackfillConfig
	dim      int
	logger   *errors.Logger
}

// NewBackfiller creates a backfill runner.
func NewBackfiller(store BackfillStore, enricher Enricher, cfg config.BackfillConfig, dim int, logger *errors.Logger) *Backfiller {
	return &Backfiller{
		store:    store,
		enricher: enricher,
		cfg:      cfg,
		dim:      dim,
		logger:   logger,
	}
}

// RunOnce processes one batch. Exhaustion stops the batch early; the next
// scheduled run picks up where this one left off; there is no point burning
// the retry budget on every remaining row.
func (b *Backfiller) RunOnce(ctx context.Context) (int, error) {
	jobs, err := b.store.QueryNeedingBackfill(ctx, b.dim, b.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		b.logger.Debug("Backfill: nothing to do")
		return 0, nil
	}

	b.logger.Info("Backfill batch started", "candidates", len(jobs))

	done := 0
	for _, stale := range jobs {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		enriched, err := b.enricher.Enrich(ctx, stale.RawJob)
		if err != nil {
			if errors.IsExhausted(err) {
				b.logger.Warn("Backfill paused: dispatcher exhausted", "done", done)
				return done, nil
			}
			b.logger.LogError(err, "Backfill enrichment failed; skipping row", "job_id", stale.ID)
			continue
		}

		// Preserve the original first-write timestamp.
		if !stale.CreatedAt.IsZero() {
			enriched.CreatedAt = stale.CreatedAt
		}

		if err := b.store.UpsertEnrichedJob(ctx, enriched); err != nil {
			b.logger.LogError(err, "Backfill upsert failed; skipping row", "job_id", stale.ID)
			continue
		}
		done++
	}

	b.logger.Info("Backfill batch finished", "updated", done)
	return done, nil
}

// Schedule registers the backfill on a cron schedule and returns the
// started scheduler. The caller stops it on shutdown.
func (b *Backfiller) Schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(b.cfg.Schedule, func() {
		if _, err := b.RunOnce(ctx); err != nil && ctx.Err() == nil {
			b.logger.LogError(err, "Scheduled backfill run failed")
		}
	})
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"invalid backfill schedule", err).WithContext("schedule", b.cfg.Schedule)
	}

	c.Start()
	b.logger.Info("Backfill scheduled", "schedule", b.cfg.Schedule, "batch_size", b.cfg.BatchSize)
	return c, nil
}
