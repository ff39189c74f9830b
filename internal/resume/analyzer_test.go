package resume

import (
	"context"
	"strings"
	"testing"

	"jobpulse/internal/ai"
	"jobpulse/internal/config"
	"jobpulse/internal/errors"
	"jobpulse/internal/types"
)

// callRecord tracks dispatcher traffic for one analysis.
type callRecord struct {
	structured int
	embeds     int
	texts      int
}

// fakeProvider scripts the three dispatcher calls of one analysis.
type fakeProvider struct {
	profileJSON   string
	profileErr    error
	embedVec      []float64
	embedErr      error
	gapJSON       string
	gapErr        error
	record        callRecord
	lastGapPrompt string
}

func (f *fakeProvider) GenerateStructured(ctx context.Context, prompt string, shape ai.Shape, out any) error {
	f.record.structured++
	if f.profileErr != nil {
		return f.profileErr
	}
	return ai.DecodeJSON(f.profileJSON, out)
}

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.record.texts++
	f.lastGapPrompt = prompt
	return f.gapJSON, f.gapErr
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	f.record.embeds++
	return f.embedVec, f.embedErr
}

func (f *fakeProvider) EmbeddingDim() int { return 768 }

// fakeRanker serves a fixed match list and records the query parameters.
type fakeRanker struct {
	matches []types.MatchResult
	limit   int
	minSim  float64
}

func (r *fakeRanker) Rank(ctx context.Context, query []float64, limit int, minSimilarity float64, filters types.MatchFilters) ([]types.MatchResult, error) {
	r.limit = limit
	r.minSim = minSimilarity
	out := make([]types.MatchResult, len(r.matches))
	copy(out, r.matches)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testLogger(t *testing.T) *errors.Logger {
	t.Helper()
	logger, err := errors.New("error")
	if err != nil {
		t.Fatal(err)
	}
	return logger
}

func matchFor(id string, sim float64) types.MatchResult {
	return types.MatchResult{
		Job: types.EnrichedJob{
			RawJob:    types.RawJob{ID: id, Position: "Engineer", Company: "Acme"},
			Skills:    []string{"Go", "Kafka"},
			Seniority: types.SeniorityMid,
		},
		Similarity: sim,
	}
}

const profileJSON = `{
	"skills": ["Go", "Kafka", "Postgres"],
	"experience_years": 6,
	"summary": "Backend engineer with streaming experience.",
	"key_strengths": ["Distributed systems"],
	"education": "BSc Computer Science",
	"job_titles": ["Backend Engineer"]
}`

const gapJSONThree = `[
	{"missing_skills": ["Rust"], "matching_skills": ["Go"], "recommendations": ["Learn Rust"]},
	{"missing_skills": ["K8s"], "matching_skills": ["Kafka"], "recommendations": ["Deploy on K8s"]},
	{"missing_skills": ["Terraform"], "matching_skills": ["Postgres"], "recommendations": ["Study IaC"]}
]`

func workingProvider() *fakeProvider {
	vec := make([]float64, 768)
	for i := range vec {
		vec[i] = 0.1
	}
	return &fakeProvider{
		profileJSON: profileJSON,
		embedVec:    vec,
		gapJSON:     gapJSONThree,
	}
}

func TestAnalyzeCombinedGap(t *testing.T) {
	// Five matches, gap depth 3: exactly three dispatcher calls total, gaps
	// populated on the first three matches and absent on the rest.
	provider := workingProvider()
	ranker := &fakeRanker{matches: []types.MatchResult{
		matchFor("J1", 0.9), matchFor("J2", 0.8), matchFor("J3", 0.7),
		matchFor("J4", 0.6), matchFor("J5", 0.5),
	}}
	a := NewAnalyzer(provider, ranker, config.PromptConfig{}, 0, testLogger(t))

	out, err := a.Analyze(context.Background(), types.AnalyzeResumeInput{
		ResumeText: "Go engineer with Kafka experience.",
		Limit:      5,
		IncludeGap: true,
		GapDepth:   3,
	})
	if err != nil {
		t.Fatal(err)
	}

	if provider.record.structured != 1 || provider.record.embeds != 1 || provider.record.texts != 1 {
		t.Errorf("dispatcher calls = %+v, want exactly {1,1,1}", provider.record)
	}

	if len(out.Matches) != 5 {
		t.Fatalf("matches = %d, want 5", len(out.Matches))
	}
	for i := 0; i < 3; i++ {
		if out.Matches[i].Gap == nil {
			t.Errorf("match %d missing gap", i)
		}
	}
	for i := 3; i < 5; i++ {
		if out.Matches[i].Gap != nil {
			t.Errorf("match %d unexpectedly has a gap", i)
		}
	}

	if out.Matches[0].Gap.Missing[0] != "Rust" {
		t.Errorf("gap splice order wrong: %+v", out.Matches[0].Gap)
	}
	if out.Profile.ExperienceYears != 6 {
		t.Errorf("profile experience = %d", out.Profile.ExperienceYears)
	}
	if out.ProcessingTimeMS < 0 {
		t.Errorf("processing time = %f", out.ProcessingTimeMS)
	}
}

func TestAnalyzeGapDisabled(t *testing.T) {
	provider := workingProvider()
	ranker := &fakeRanker{matches: []types.MatchResult{matchFor("J1", 0.9)}}
	a := NewAnalyzer(provider, ranker, config.PromptConfig{}, 0, testLogger(t))

	out, err := a.Analyze(context.Background(), types.AnalyzeResumeInput{
		ResumeText: "anything",
		IncludeGap: false,
	})
	if err != nil {
		t.Fatal(err)
	}
	if provider.record.texts != 0 {
		t.Error("gap call issued despite include_gap=false")
	}
	if out.Matches[0].Gap != nil {
		t.Error("gap present despite include_gap=false")
	}
}

func TestAnalyzeDefaults(t *testing.T) {
	provider := workingProvider()
	ranker := &fakeRanker{}
	a := NewAnalyzer(provider, ranker, config.PromptConfig{}, 0, testLogger(t))

	if _, err := a.Analyze(context.Background(), types.AnalyzeResumeInput{
		ResumeText: "anything",
		IncludeGap: true,
	}); err != nil {
		t.Fatal(err)
	}

	if ranker.limit != DefaultLimit {
		t.Errorf("limit = %d, want default %d", ranker.limit, DefaultLimit)
	}
}

func TestAnalyzeEmptyTextIsInputError(t *testing.T) {
	a := NewAnalyzer(workingProvider(), &fakeRanker{}, config.PromptConfig{}, 0, testLogger(t))
	_, err := a.Analyze(context.Background(), types.AnalyzeResumeInput{ResumeText: "   "})
	if !errors.IsInput(err) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestAnalyzePropagatesExhaustion(t *testing.T) {
	tests := []struct {
		name string
		prep func(p *fakeProvider)
	}{
		{"profile step", func(p *fakeProvider) {
			p.profileErr = errors.NewExhaustedError("all credentials exhausted", nil)
		}},
		{"embed step", func(p *fakeProvider) {
			p.embedErr = errors.NewExhaustedError("all credentials exhausted", nil)
		}},
		{"gap step", func(p *fakeProvider) {
			p.gapErr = errors.NewExhaustedError("all credentials exhausted", nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := workingProvider()
			tt.prep(provider)
			ranker := &fakeRanker{matches: []types.MatchResult{matchFor("J1", 0.9)}}
			a := NewAnalyzer(provider, ranker, config.PromptConfig{}, 0, testLogger(t))

			_, err := a.Analyze(context.Background(), types.AnalyzeResumeInput{
				ResumeText: "anything",
				IncludeGap: true,
			})
			if !errors.IsExhausted(err) {
				t.Fatalf("expected exhaustion propagated, got %v", err)
			}
		})
	}
}

func TestAnalyzeGapCountMismatchIsParseError(t *testing.T) {
	provider := workingProvider()
	provider.gapJSON = `[{"missing_skills": [], "matching_skills": [], "recommendations": []}]`
	ranker := &fakeRanker{matches: []types.MatchResult{
		matchFor("J1", 0.9), matchFor("J2", 0.8), matchFor("J3", 0.7),
	}}
	a := NewAnalyzer(provider, ranker, config.PromptConfig{}, 0, testLogger(t))

	_, err := a.Analyze(context.Background(), types.AnalyzeResumeInput{
		ResumeText: "anything",
		IncludeGap: true,
		GapDepth:   3,
	})
	if !errors.IsParse(err) {
		t.Fatalf("expected parse error on gap count mismatch, got %v", err)
	}
}

func TestAnalyzeGapDepthClampedToMatches(t *testing.T) {
	provider := workingProvider()
	provider.gapJSON = `[{"missing_skills": ["X"], "matching_skills": [], "recommendations": []}]`
	ranker := &fakeRanker{matches: []types.MatchResult{matchFor("J1", 0.9)}}
	a := NewAnalyzer(provider, ranker, config.PromptConfig{}, 0, testLogger(t))

	out, err := a.Analyze(context.Background(), types.AnalyzeResumeInput{
		ResumeText: "anything",
		IncludeGap: true,
		GapDepth:   3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Matches[0].Gap == nil {
		t.Error("single match missing its gap")
	}
	// The gap prompt lists only the single available job.
	if strings.Count(provider.lastGapPrompt, "Job 1:") != 1 || strings.Contains(provider.lastGapPrompt, "Job 2:") {
		t.Error("gap prompt lists more jobs than matches")
	}
}

func TestPlainTextExtractor(t *testing.T) {
	e := &PlainTextExtractor{CharsPerPage: 10}

	t.Run("passes text through", func(t *testing.T) {
		text, err := e.Extract([]byte("  hello resume  "), "text/plain", 0)
		if err != nil {
			t.Fatal(err)
		}
		if text != "hello resume" {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("page cap bounds characters", func(t *testing.T) {
		long := strings.Repeat("x", 100)
		text, err := e.Extract([]byte(long), "text/plain", 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(text) != 30 {
			t.Errorf("len = %d, want 3 pages x 10 chars", len(text))
		}
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		if _, err := e.Extract(nil, "text/plain", 0); !errors.IsInput(err) {
			t.Fatalf("expected input error, got %v", err)
		}
	})

	t.Run("unsupported type rejected", func(t *testing.T) {
		if _, err := e.Extract([]byte("x"), "application/pdf", 0); !errors.IsInput(err) {
			t.Fatalf("expected input error, got %v", err)
		}
	})
}
