package ai

import (
	"context"
	"strings"
	"sync"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// slotHealth is the lifecycle state of one credential slot.
type slotHealth int

const (
	slotHealthy slotHealth = iota
	slotCooling
)

// slot is one entry in the credential pool. Mutated only by the dispatcher
// under its mutex.
type slot struct {
	cred          Credential
	state         slotHealth
	cooldownUntil time.Time
	calls         uint64
	lastCall      time.Time
}

// Stats are cumulative dispatcher counters, exposed on the stats endpoint.
type Stats struct {
	Calls        uint64 `json:"calls"`
	Successes    uint64 `json:"successes"`
	RateLimited  uint64 `json:"rate_limited"`
	Rotations    uint64 `json:"rotations"`
	Exhaustions  uint64 `json:"exhaustions"`
	Transport    uint64 `json:"transport_errors"`
	ThrottleWait string `json:"throttle_wait_total"`
}

// Dispatcher is the single point through which all LLM traffic flows. It
// rotates credentials, enforces the throttle floor, cools rate-limited
// slots, and retries within a bounded budget before reporting exhaustion.
//
// The whole dispatch (throttle wait, slot selection, invocation, outcome
// classification) runs under one mutex. Waiters are served FIFO by
// the mutex, which gives successful calls submission order. The provider's
// per-second budget is tight enough that this serialization is not the
// bottleneck.
type Dispatcher struct {
	cfg    config.AIConfig
	client LLMClient
	logger *errors.Logger

	mu       sync.Mutex
	slots    []*slot
	cursor   int
	lastCall time.Time

	genBreaker   *providerBreaker[string]
	embedBreaker *providerBreaker[[]float64]

	statsMu           sync.Mutex
	stats             Stats
	throttleWaitTotal time.Duration

	// Test seams; production uses the clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds the credential pool from configuration. The pool
// shape is fixed for the life of the dispatcher.
func NewDispatcher(cfg config.AIConfig, client LLMClient, logger *errors.Logger) (*Dispatcher, error) {
	if len(cfg.Credentials) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeMissingCredentials,
			"dispatcher requires at least one credential", nil)
	}

	slots := make([]*slot, len(cfg.Credentials))
	for i, cred := range cfg.Credentials {
		slots[i] = &slot{cred: Credential(cred)}
	}

	logger.Info("Dispatcher initialized",
		"pool_size", len(slots),
		"model_generate", cfg.ModelGenerate,
		"model_embed", cfg.ModelEmbed,
		"min_gap", cfg.MinGapBetweenCalls.String(),
		"per_slot_cooldown", cfg.PerSlotCooldown.String(),
		"max_retries", cfg.MaxRetries())

	return &Dispatcher{
		cfg:          cfg,
		client:       client,
		logger:       logger,
		slots:        slots,
		genBreaker:   newProviderBreaker[string]("generate", cfg.CircuitBreaker, logger),
		embedBreaker: newProviderBreaker[[]float64]("embed", cfg.CircuitBreaker, logger),
		now:          time.Now,
		sleep:        sleepCtx,
	}, nil
}

// EmbeddingDim returns the configured embedding dimensionality D.
func (d *Dispatcher) EmbeddingDim() int {
	return d.cfg.EmbeddingDim
}

// GenerateText produces free text for a prompt.
func (d *Dispatcher) GenerateText(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("jobpulse.ai")
	ctx, span := tracer.Start(ctx, "dispatcher.generate_text")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", d.cfg.ModelGenerate),
		attribute.Int("prompt.length", len(prompt)),
	)

	text, err := dispatch(d, ctx, d.genBreaker, func(ctx context.Context, cred Credential) (string, error) {
		return d.client.Generate(ctx, cred, d.cfg.ModelGenerate, prompt, GenerateOptions{
			Temperature:     d.cfg.Temperature,
			MaxOutputTokens: d.cfg.MaxOutputTokens,
		})
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateStructured asks for a single JSON object matching shape and
// decodes it into out. Markdown fencing is stripped; missing or mistyped
// required fields yield a parse error.
func (d *Dispatcher) GenerateStructured(ctx context.Context, prompt string, shape Shape, out any) error {
	tracer := otel.Tracer("jobpulse.ai")
	ctx, span := tracer.Start(ctx, "dispatcher.generate_structured")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", d.cfg.ModelGenerate),
		attribute.String("shape", shape.Name),
	)

	text, err := dispatch(d, ctx, d.genBreaker, func(ctx context.Context, cred Credential) (string, error) {
		return d.client.Generate(ctx, cred, d.cfg.ModelGenerate, prompt, GenerateOptions{
			Temperature:     d.cfg.Temperature,
			MaxOutputTokens: d.cfg.MaxOutputTokens,
		})
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := parseStructured(text, shape, out); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Embed returns a vector of exactly EmbeddingDim elements. A response of a
// different dimensionality fails with a parse error; the dispatcher never
// pads, truncates, or substitutes.
func (d *Dispatcher) Embed(ctx context.Context, text string) ([]float64, error) {
	tracer := otel.Tracer("jobpulse.ai")
	ctx, span := tracer.Start(ctx, "dispatcher.embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", d.cfg.ModelEmbed),
		attribute.Int("text.length", len(text)),
	)

	vec, err := dispatch(d, ctx, d.embedBreaker, func(ctx context.Context, cred Credential) ([]float64, error) {
		return d.client.Embed(ctx, cred, d.cfg.ModelEmbed, text)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(vec) != d.cfg.EmbeddingDim {
		err := errors.NewParseError(errors.ErrCodeEmbeddingDim,
			"provider returned wrong embedding dimensionality", nil).
			WithContext("want", d.cfg.EmbeddingDim).
			WithContext("got", len(vec))
		span.RecordError(err)
		return nil, err
	}
	return vec, nil
}

// dispatch runs one call through the pool protocol:
// throttle, select slot, invoke, classify, retry on rate limit.
func dispatch[T any](d *Dispatcher, ctx context.Context, breaker *providerBreaker[T], invoke func(context.Context, Credential) (T, error)) (T, error) {
	var zero T

	d.mu.Lock()
	defer d.mu.Unlock()

	maxRetries := d.cfg.MaxRetries()
	retries := 0

	for {
		// Step 1: throttle. No two submissions within minGapBetweenCalls.
		if err := d.throttleLocked(ctx); err != nil {
			return zero, err
		}

		// Step 2: select the first usable slot from the cursor.
		idx, err := d.selectSlotLocked(ctx)
		if err != nil {
			return zero, err
		}
		s := d.slots[idx]

		// Step 3: invoke with the selected credential.
		now := d.now()
		d.lastCall = now
		s.calls++
		s.lastCall = now
		d.countCall()

		result, callErr := breaker.Execute(func() (T, error) {
			return invoke(ctx, s.cred)
		})

		// Step 4: classify the outcome.
		if callErr == nil {
			// Round-robin fairness: move past the slot that just served.
			d.cursor = (idx + 1) % len(d.slots)
			s.state = slotHealthy
			s.cooldownUntil = time.Time{}
			d.countSuccess()
			return result, nil
		}

		if isRateLimitSignal(callErr) {
			s.state = slotCooling
			s.cooldownUntil = d.now().Add(d.cfg.PerSlotCooldown)
			d.cursor = (idx + 1) % len(d.slots)
			retries++
			d.countRateLimited()
			d.logger.Warn("Rate limit on credential slot; rotating",
				"slot", idx,
				"cooldown", d.cfg.PerSlotCooldown.String(),
				"retry", retries,
				"max_retries", maxRetries)

			if retries < maxRetries {
				continue
			}
			d.countExhaustion()
			return zero, errors.NewExhaustedError(
				"all credentials exhausted within retry budget", callErr).
				WithContext("retries", retries)
		}

		// Transport / other error: surface without cooling the slot.
		d.countTransport()
		if isBreakerRejection(callErr) {
			return zero, errors.NewTransportError("provider circuit open", callErr)
		}
		return zero, errors.NewTransportError("provider call failed", callErr).
			WithContext("transient", isTransientTransport(callErr))
	}
}

// throttleLocked sleeps until the throttle floor has elapsed since the last
// submission. Called with the dispatcher mutex held.
func (d *Dispatcher) throttleLocked(ctx context.Context) error {
	if d.cfg.MinGapBetweenCalls <= 0 || d.lastCall.IsZero() {
		return nil
	}

	wait := d.cfg.MinGapBetweenCalls - d.now().Sub(d.lastCall)
	if wait <= 0 {
		return nil
	}

	d.addThrottleWait(wait)
	if err := d.sleep(ctx, wait); err != nil {
		return errors.NewTransportError("canceled while throttling", err)
	}
	return nil
}

// selectSlotLocked scans from the cursor for the first healthy slot,
// reviving slots whose cooldown has elapsed. When every slot is cooling it
// waits for the nearest cooldown rather than busy-looping; a caller
// deadline exceeded during that wait is exhaustion.
func (d *Dispatcher) selectSlotLocked(ctx context.Context) (int, error) {
	for {
		now := d.now()
		nearest := time.Time{}

		for i := range d.slots {
			idx := (d.cursor + i) % len(d.slots)
			s := d.slots[idx]

			if s.state == slotCooling {
				if s.cooldownUntil.After(now) {
					if nearest.IsZero() || s.cooldownUntil.Before(nearest) {
						nearest = s.cooldownUntil
					}
					continue
				}
				// Cooldown elapsed; the slot is usable again.
				s.state = slotHealthy
				s.cooldownUntil = time.Time{}
			}
			return idx, nil
		}

		// Every slot is cooling. Give up early if the caller's deadline
		// cannot outlast the nearest cooldown.
		wait := nearest.Sub(now)
		if deadline, ok := ctx.Deadline(); ok && deadline.Before(nearest) {
			d.countExhaustion()
			return 0, errors.NewExhaustedError(
				"all credential slots cooling past caller deadline", nil).
				WithContext("nearest_cooldown", wait.String())
		}

		d.logger.Info("All credential slots cooling; waiting",
			"wait", wait.String())
		if err := d.sleep(ctx, wait); err != nil {
			d.countExhaustion()
			return 0, errors.NewExhaustedError(
				"canceled while waiting for credential cooldown", err)
		}
	}
}

// PoolStatus is a snapshot of slot health for the health endpoint. Slots are
// reported by index; tokens never leave the dispatcher.
type PoolStatus struct {
	Size    int `json:"size"`
	Healthy int `json:"healthy"`
	Cooling int `json:"cooling"`
}

// Status returns a snapshot of pool health.
func (d *Dispatcher) Status() PoolStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := PoolStatus{Size: len(d.slots)}
	now := d.now()
	for _, s := range d.slots {
		if s.state == slotCooling && s.cooldownUntil.After(now) {
			status.Cooling++
		} else {
			status.Healthy++
		}
	}
	return status
}

// GetStats returns cumulative dispatcher counters plus breaker state.
func (d *Dispatcher) GetStats() map[string]any {
	d.statsMu.Lock()
	stats := d.stats
	stats.ThrottleWait = d.throttleWaitTotal.String()
	d.statsMu.Unlock()

	return map[string]any{
		"counters":         stats,
		"pool":             d.Status(),
		"generate_breaker": d.genBreaker.Stats(),
		"embed_breaker":    d.embedBreaker.Stats(),
	}
}

// RetryBackoff is the wait upstream components should apply after an
// exhaustion before redelivering work: the per-slot cooldown.
func (d *Dispatcher) RetryBackoff() time.Duration {
	return d.cfg.PerSlotCooldown
}

// Close releases the underlying client.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}

func (d *Dispatcher) countCall()        { d.statsMu.Lock(); d.stats.Calls++; d.statsMu.Unlock() }
func (d *Dispatcher) countSuccess()     { d.statsMu.Lock(); d.stats.Successes++; d.statsMu.Unlock() }
func (d *Dispatcher) countTransport()   { d.statsMu.Lock(); d.stats.Transport++; d.statsMu.Unlock() }
func (d *Dispatcher) countExhaustion()  { d.statsMu.Lock(); d.stats.Exhaustions++; d.statsMu.Unlock() }
func (d *Dispatcher) countRateLimited() {
	d.statsMu.Lock()
	d.stats.RateLimited++
	d.stats.Rotations++
	d.statsMu.Unlock()
}

func (d *Dispatcher) addThrottleWait(wait time.Duration) {
	d.statsMu.Lock()
	d.throttleWaitTotal += wait
	d.statsMu.Unlock()
}

// sleepCtx sleeps for d or until ctx is done.
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
