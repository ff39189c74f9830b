package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/errors"
	"jobpulse/internal/types"
)

// backfillStore pairs the upsert recorder with a fixed stale set.
type backfillStore struct {
	*memUpsertStore
	mu    sync.Mutex
	stale []types.EnrichedJob
}

func (s *backfillStore) QueryNeedingBackfill(ctx context.Context, dim, limit int) ([]types.EnrichedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && len(s.stale) > limit {
		return append([]types.EnrichedJob(nil), s.stale[:limit]...), nil
	}
	return append([]types.EnrichedJob(nil), s.stale...), nil
}

func staleJob(id string, created time.Time) types.EnrichedJob {
	return types.EnrichedJob{
		RawJob:    types.RawJob{ID: id, Position: "Engineer", Description: "Go, Kafka"},
		Seniority: types.SeniorityMid,
		Embedding: make([]float64, 384), // legacy dimensionality
		CreatedAt: created,
	}
}

func TestBackfillRunOnce(t *testing.T) {
	created := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	store := &backfillStore{
		memUpsertStore: newMemUpsertStore(),
		stale:          []types.EnrichedJob{staleJob("J1", created), staleJob("J2", created)},
	}
	b := NewBackfiller(store, &scriptedEnricher{}, config.BackfillConfig{BatchSize: 10}, 768, testLogger(t))

	done, err := b.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if done != 2 {
		t.Errorf("backfilled = %d, want 2", done)
	}

	job, ok := store.get("J1")
	if !ok {
		t.Fatal("backfilled job not stored")
	}
	if len(job.Embedding) != 768 {
		t.Errorf("len(embedding) = %d, want 768", len(job.Embedding))
	}
	// The first write's timestamp survives re-enrichment.
	if !job.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want preserved %v", job.CreatedAt, created)
	}
}

func TestBackfillStopsOnExhaustion(t *testing.T) {
	store := &backfillStore{
		memUpsertStore: newMemUpsertStore(),
		stale: []types.EnrichedJob{
			staleJob("J1", time.Now()),
			staleJob("J2", time.Now()),
			staleJob("J3", time.Now()),
		},
	}
	enricher := &scriptedEnricher{script: []error{
		nil,
		errors.NewExhaustedError("all credentials exhausted", nil),
	}}
	b := NewBackfiller(store, enricher, config.BackfillConfig{BatchSize: 10}, 768, testLogger(t))

	done, err := b.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// One row done, then the batch pauses instead of burning the budget.
	if done != 1 {
		t.Errorf("backfilled = %d, want 1", done)
	}
	if enricher.calls != 2 {
		t.Errorf("enrich attempts = %d, want 2", enricher.calls)
	}
}

func TestBackfillBatchSize(t *testing.T) {
	store := &backfillStore{
		memUpsertStore: newMemUpsertStore(),
		stale: []types.EnrichedJob{
			staleJob("J1", time.Now()),
			staleJob("J2", time.Now()),
			staleJob("J3", time.Now()),
		},
	}
	b := NewBackfiller(store, &scriptedEnricher{}, config.BackfillConfig{BatchSize: 2}, 768, testLogger(t))

	done, err := b.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if done != 2 {
		t.Errorf("backfilled = %d, want batch size 2", done)
	}
}
