package ai

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/errors"

	"google.golang.org/api/googleapi"
)

// fakeClock drives dispatcher time deterministically; sleeping advances it.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return nil
}

// stubResult scripts one provider call outcome.
type stubResult struct {
	text string
	vec  []float64
	err  error
}

// stubLLM replays a script of outcomes and records which credential served
// each call.
type stubLLM struct {
	mu      sync.Mutex
	script  []stubResult
	calls   int
	creds   []Credential
	callTim []time.Time
	clock   *fakeClock
}

func (s *stubLLM) next(cred Credential) stubResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = append(s.creds, cred)
	if s.clock != nil {
		s.callTim = append(s.callTim, s.clock.Now())
	}
	var r stubResult
	if s.calls < len(s.script) {
		r = s.script[s.calls]
	} else if len(s.script) > 0 {
		r = s.script[len(s.script)-1] // repeat the final outcome
	}
	s.calls++
	return r
}

func (s *stubLLM) Generate(_ context.Context, cred Credential, _, _ string, _ GenerateOptions) (string, error) {
	r := s.next(cred)
	return r.text, r.err
}

func (s *stubLLM) Embed(_ context.Context, cred Credential, _, _ string) ([]float64, error) {
	r := s.next(cred)
	return r.vec, r.err
}

func (s *stubLLM) Close() error { return nil }

func rateLimitErr() error {
	return &googleapi.Error{Code: 429, Message: "RESOURCE_EXHAUSTED: quota exceeded"}
}

func testConfig(credentials ...string) config.AIConfig {
	return config.AIConfig{
		Credentials:        credentials,
		ModelGenerate:      "models/test-generate",
		ModelEmbed:         "test-embed",
		MinGapBetweenCalls: 2 * time.Second,
		PerSlotCooldown:    60 * time.Second,
		EmbeddingDim:       768,
		Temperature:        0.3,
		MaxOutputTokens:    1000,
	}
}

func newTestDispatcher(t *testing.T, cfg config.AIConfig, stub *stubLLM) (*Dispatcher, *fakeClock) {
	t.Helper()
	logger, err := errors.New("error")
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDispatcher(cfg, stub, logger)
	if err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	stub.clock = clock
	d.now = clock.Now
	d.sleep = clock.Sleep
	return d, clock
}

func TestThrottleFloorBetweenCalls(t *testing.T) {
	stub := &stubLLM{script: []stubResult{{text: "ok"}}}
	d, _ := newTestDispatcher(t, testConfig("cred-a"), stub)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := d.GenerateText(ctx, "prompt"); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	for i := 1; i < len(stub.callTim); i++ {
		gap := stub.callTim[i].Sub(stub.callTim[i-1])
		if gap < 2*time.Second {
			t.Errorf("gap between call %d and %d is %v, want >= 2s", i-1, i, gap)
		}
	}
}

func TestRateLimitRotatesToNextSlot(t *testing.T) {
	// Slot 0 is rate limited; slot 1 succeeds. One rotation, no exhaustion.
	stub := &stubLLM{script: []stubResult{
		{err: rateLimitErr()},
		{text: "ok"},
	}}
	d, _ := newTestDispatcher(t, testConfig("cred-a", "cred-b"), stub)

	text, err := d.GenerateText(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected success after rotation, got %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}

	if len(stub.creds) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(stub.creds))
	}
	if stub.creds[0] != "cred-a" || stub.creds[1] != "cred-b" {
		t.Errorf("attempt order = %v", stub.creds)
	}

	// The failed and successful attempts still honor the throttle floor.
	gap := stub.callTim[1].Sub(stub.callTim[0])
	if gap < 2*time.Second {
		t.Errorf("gap between attempts = %v, want >= 2s", gap)
	}

	status := d.Status()
	if status.Cooling != 1 || status.Healthy != 1 {
		t.Errorf("pool status = %+v, want 1 cooling / 1 healthy", status)
	}
}

func TestFullExhaustion(t *testing.T) {
	stub := &stubLLM{script: []stubResult{{err: rateLimitErr()}}}
	cfg := testConfig("cred-a", "cred-b")
	cfg.MaxRetriesOnRateLimit = 2
	d, _ := newTestDispatcher(t, cfg, stub)

	_, err := d.GenerateText(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !errors.IsExhausted(err) {
		t.Errorf("error not classified as exhausted: %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("attempts = %d, want 2 (retry budget)", stub.calls)
	}
	// Every slot was attempted before failing.
	if stub.creds[0] == stub.creds[1] {
		t.Errorf("both attempts hit the same slot: %v", stub.creds)
	}
}

func TestSingleSlotPool(t *testing.T) {
	// Pool of 1 behaves as pure throttle + single-slot cooldown.
	stub := &stubLLM{script: []stubResult{
		{err: rateLimitErr()},
		{text: "ok"},
	}}
	cfg := testConfig("cred-a")
	cfg.MaxRetriesOnRateLimit = 2
	d, clock := newTestDispatcher(t, cfg, stub)

	start := clock.Now()
	text, err := d.GenerateText(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected success after cooldown, got %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}

	// The second attempt had to wait out the 60s cooldown on the only slot.
	elapsed := clock.Now().Sub(start)
	if elapsed < 60*time.Second {
		t.Errorf("elapsed = %v, want >= per-slot cooldown", elapsed)
	}
}

func TestSingleSlotExhaustsAfterBudget(t *testing.T) {
	stub := &stubLLM{script: []stubResult{{err: rateLimitErr()}}}
	cfg := testConfig("cred-a")
	cfg.MaxRetriesOnRateLimit = 3
	d, _ := newTestDispatcher(t, cfg, stub)

	_, err := d.GenerateText(context.Background(), "prompt")
	if !errors.IsExhausted(err) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if stub.calls != 3 {
		t.Errorf("attempts = %d, want retry budget 3", stub.calls)
	}
}

func TestAllSlotsCoolingWaitsForNearest(t *testing.T) {
	// Both slots rate limited, then the pool recovers: the dispatcher waits
	// for the nearest cooldown instead of busy-looping, then succeeds.
	stub := &stubLLM{script: []stubResult{
		{err: rateLimitErr()},
		{err: rateLimitErr()},
		{text: "ok"},
	}}
	cfg := testConfig("cred-a", "cred-b")
	cfg.MaxRetriesOnRateLimit = 5
	d, clock := newTestDispatcher(t, cfg, stub)

	start := clock.Now()
	if _, err := d.GenerateText(context.Background(), "prompt"); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}

	elapsed := clock.Now().Sub(start)
	if elapsed < 60*time.Second {
		t.Errorf("elapsed = %v, want >= cooldown before third attempt", elapsed)
	}
	if stub.calls != 3 {
		t.Errorf("attempts = %d, want 3", stub.calls)
	}
}

func TestDeadlineDuringCooldownWaitIsExhaustion(t *testing.T) {
	stub := &stubLLM{script: []stubResult{
		{err: rateLimitErr()},
		{err: rateLimitErr()},
	}}
	cfg := testConfig("cred-a", "cred-b")
	cfg.MaxRetriesOnRateLimit = 5
	d, clock := newTestDispatcher(t, cfg, stub)

	// Deadline well before the 60s cooldown can elapse.
	ctx, cancel := context.WithDeadline(context.Background(), clock.Now().Add(10*time.Second))
	defer cancel()

	_, err := d.GenerateText(ctx, "prompt")
	if !errors.IsExhausted(err) {
		t.Fatalf("expected exhaustion when deadline precedes cooldown, got %v", err)
	}
}

func TestTransportErrorDoesNotCoolSlot(t *testing.T) {
	stub := &stubLLM{script: []stubResult{{err: stderrors.New("connection reset by peer")}}}
	d, _ := newTestDispatcher(t, testConfig("cred-a", "cred-b"), stub)

	_, err := d.GenerateText(context.Background(), "prompt")
	if !errors.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("transport errors must not be retried by the dispatcher; attempts = %d", stub.calls)
	}

	status := d.Status()
	if status.Cooling != 0 {
		t.Errorf("transport error cooled a slot: %+v", status)
	}
}

func TestRoundRobinAdvanceOnSuccess(t *testing.T) {
	stub := &stubLLM{script: []stubResult{{text: "ok"}}}
	d, _ := newTestDispatcher(t, testConfig("cred-a", "cred-b", "cred-c"), stub)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if _, err := d.GenerateText(ctx, "prompt"); err != nil {
			t.Fatal(err)
		}
	}

	want := []Credential{"cred-a", "cred-b", "cred-c", "cred-a", "cred-b", "cred-c"}
	for i, cred := range want {
		if stub.creds[i] != cred {
			t.Fatalf("call %d served by %q, want %q (order: %v)", i, stub.creds[i], cred, stub.creds)
		}
	}
}

func TestEmbedDimensionalityGuard(t *testing.T) {
	short := make([]float64, 384)
	stub := &stubLLM{script: []stubResult{{vec: short}}}
	d, _ := newTestDispatcher(t, testConfig("cred-a"), stub)

	_, err := d.Embed(context.Background(), "text")
	if !errors.IsParse(err) {
		t.Fatalf("expected parse error for wrong dimensionality, got %v", err)
	}
}

func TestEmbedReturnsFullVector(t *testing.T) {
	vec := make([]float64, 768)
	for i := range vec {
		vec[i] = 0.1
	}
	stub := &stubLLM{script: []stubResult{{vec: vec}}}
	d, _ := newTestDispatcher(t, testConfig("cred-a"), stub)

	got, err := d.Embed(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 768 {
		t.Errorf("len(embedding) = %d, want 768", len(got))
	}
}

func TestGenerateStructured(t *testing.T) {
	type enrichOut struct {
		Skills    []string `json:"skills"`
		Seniority string   `json:"seniority"`
		Summary   string   `json:"summary"`
	}

	t.Run("fenced response with seniority variant", func(t *testing.T) {
		stub := &stubLLM{script: []stubResult{{
			text: "```json\n{\"skills\": [\"Go\", \"go\", \"Kafka\"], \"seniority\": \"Principal Engineer\", \"summary\": \"A role.\"}\n```",
		}}}
		d, _ := newTestDispatcher(t, testConfig("cred-a"), stub)

		var out enrichOut
		if err := d.GenerateStructured(context.Background(), "prompt", EnrichJobShape, &out); err != nil {
			t.Fatal(err)
		}
		if out.Seniority != "Lead" {
			t.Errorf("seniority = %q, want normalized Lead", out.Seniority)
		}
		if out.Summary != "A role." {
			t.Errorf("summary = %q", out.Summary)
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		stub := &stubLLM{script: []stubResult{{text: `{"experience_years": 4}`}}}
		d, _ := newTestDispatcher(t, testConfig("cred-a"), stub)

		var out map[string]any
		err := d.GenerateStructured(context.Background(), "prompt", ResumeProfileShape, &out)
		if !errors.IsParse(err) {
			t.Fatalf("expected parse error for missing required field, got %v", err)
		}
	})

	t.Run("not JSON at all", func(t *testing.T) {
		stub := &stubLLM{script: []stubResult{{text: "I cannot help with that."}}}
		d, _ := newTestDispatcher(t, testConfig("cred-a"), stub)

		var out enrichOut
		err := d.GenerateStructured(context.Background(), "prompt", EnrichJobShape, &out)
		if !errors.IsParse(err) {
			t.Fatalf("expected parse error, got %v", err)
		}
	})
}

func TestStatsCounters(t *testing.T) {
	stub := &stubLLM{script: []stubResult{
		{err: rateLimitErr()},
		{text: "ok"},
	}}
	d, _ := newTestDispatcher(t, testConfig("cred-a", "cred-b"), stub)

	if _, err := d.GenerateText(context.Background(), "prompt"); err != nil {
		t.Fatal(err)
	}

	stats := d.GetStats()
	counters, ok := stats["counters"].(Stats)
	if !ok {
		t.Fatalf("counters missing from stats: %v", stats)
	}
	if counters.Calls != 2 || counters.Successes != 1 || counters.RateLimited != 1 {
		t.Errorf("counters = %+v", counters)
	}
}
