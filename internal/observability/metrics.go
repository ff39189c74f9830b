package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the custom instruments for jobpulse.
type Metrics struct {
	// Dispatcher metrics
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AIProcessingTime metric.Float64Histogram

	// Pipeline metrics
	JobsEnriched    metric.Int64Counter
	MessagesPoisons metric.Int64Counter
	ResumesAnalyzed metric.Int64Counter

	// Server metrics
	RateLimitHits metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.AIRequestCount, err = meter.Int64Counter("ai_requests_total",
		metric.WithDescription("LLM dispatcher calls by operation and outcome")); err != nil {
		return nil, err
	}
	if m.AIErrorCount, err = meter.Int64Counter("ai_errors_total",
		metric.WithDescription("LLM dispatcher failures by error kind")); err != nil {
		return nil, err
	}
	if m.AIProcessingTime, err = meter.Float64Histogram("ai_processing_seconds",
		metric.WithDescription("Wall time of LLM dispatcher calls"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.JobsEnriched, err = meter.Int64Counter("jobs_enriched_total",
		metric.WithDescription("Raw jobs enriched and stored")); err != nil {
		return nil, err
	}
	if m.MessagesPoisons, err = meter.Int64Counter("messages_poisoned_total",
		metric.WithDescription("Undecodable log messages skipped")); err != nil {
		return nil, err
	}
	if m.ResumesAnalyzed, err = meter.Int64Counter("resumes_analyzed_total",
		metric.WithDescription("Resume analysis requests by outcome")); err != nil {
		return nil, err
	}
	if m.RateLimitHits, err = meter.Int64Counter("rate_limit_hits_total",
		metric.WithDescription("HTTP requests rejected by the rate limiter")); err != nil {
		return nil, err
	}

	return m, nil
}

// TrackAIOperation wraps one dispatcher-backed operation with request,
// duration, and error accounting. Nil-safe when observability is disabled.
func (m *Metrics) TrackAIOperation(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if m == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)
	m.AIRequestCount.Add(ctx, 1, attrs)
	m.AIProcessingTime.Record(ctx, elapsed, attrs)
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation)))
	}
	return err
}

// RecordResumeAnalyzed counts one analysis request.
func (m *Metrics) RecordResumeAnalyzed(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.ResumesAnalyzed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordRateLimitHit counts one rejected request.
func (m *Metrics) RecordRateLimitHit(ctx context.Context, keyKind string) {
	if m == nil {
		return
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", keyKind)))
}
