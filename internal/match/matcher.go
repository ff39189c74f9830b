package match

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"jobpulse/internal/errors"
	"jobpulse/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Store is the slice of the storage collaborator the matcher needs:
// candidate tuples (job metadata plus embedding) under optional filters.
type Store interface {
	Query(ctx context.Context, filters types.MatchFilters, limit int) ([]types.EnrichedJob, error)
}

// Matcher ranks stored job embeddings against a query vector. Correctness
// is O(N·D) per query; every stored candidate that passes the filters is
// loaded (the store query runs without a limit).
type Matcher struct {
	store Store
	dim   int

	mismatches      atomic.Uint64
	mismatchCounter metric.Int64Counter
	logger          *errors.Logger
}

// NewMatcher creates a matcher enforcing embedding dimensionality dim.
func NewMatcher(store Store, dim int, logger *errors.Logger) *Matcher {
	meter := otel.Meter("jobpulse.match")
	counter, _ := meter.Int64Counter("match_dimension_mismatch_total",
		metric.WithDescription("Stored vectors excluded from ranking because their length differs from the configured dimensionality"))

	return &Matcher{
		store:           store,
		dim:             dim,
		mismatchCounter: counter,
		logger:          logger,
	}
}

// Rank returns up to limit matches with similarity >= minSimilarity, ordered
// by descending similarity; ties break by ascending job id. Stored vectors
// whose length differs from the configured dimensionality are excluded and
// counted, never truncated or padded.
func (m *Matcher) Rank(ctx context.Context, query []float64, limit int, minSimilarity float64, filters types.MatchFilters) ([]types.MatchResult, error) {
	tracer := otel.Tracer("jobpulse.match")
	ctx, span := tracer.Start(ctx, "match.rank")
	defer span.End()

	if len(query) != m.dim {
		return nil, errors.NewInputError("query vector has wrong dimensionality", nil).
			WithContext("want", m.dim).
			WithContext("got", len(query))
	}
	if limit <= 0 {
		return nil, nil
	}

	candidates, err := m.store.Query(ctx, filters, 0)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]types.MatchResult, 0, len(candidates))
	excluded := 0
	for _, job := range candidates {
		if len(job.Embedding) != m.dim {
			excluded++
			continue
		}

		sim := CosineSimilarity(query, job.Embedding)
		if sim < minSimilarity {
			continue
		}

		// Embeddings stay inside the core; responses carry metadata only.
		job.Embedding = nil
		results = append(results, types.MatchResult{Job: job, Similarity: sim})
	}

	if excluded > 0 {
		m.mismatches.Add(uint64(excluded))
		m.mismatchCounter.Add(ctx, int64(excluded))
		m.logger.Warn("Excluded stored vectors with wrong dimensionality",
			"excluded", excluded,
			"want_dim", m.dim)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Job.ID < results[j].Job.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("results", len(results)),
		attribute.Int("excluded_dim_mismatch", excluded),
	)
	return results, nil
}

// MismatchCount returns the cumulative number of dimension-mismatched
// vectors excluded from ranking.
func (m *Matcher) MismatchCount() uint64 {
	return m.mismatches.Load()
}

// CosineSimilarity computes dot(a,b) / (||a||·||b||), mapping zero norms
// to 0. Inputs must have equal length.
func CosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
