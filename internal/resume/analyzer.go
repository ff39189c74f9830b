package resume

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobpulse/internal/ai"
	"jobpulse/internal/config"
	"jobpulse/internal/errors"
	"jobpulse/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// BusyMessage is the caller-visible body when the dispatcher is exhausted.
const BusyMessage = "AI Analysis is busy. Please wait and try again."

// Defaults for the analysis request parameters.
const (
	DefaultLimit         = 5
	DefaultMinSimilarity = 0.3
	DefaultGapDepth      = 3
)

// Ranker is the matcher slice the analyzer needs (C5).
type Ranker interface {
	Rank(ctx context.Context, query []float64, limit int, minSimilarity float64, filters types.MatchFilters) ([]types.MatchResult, error)
}

// Analyzer converts extracted resume text into ranked job matches with
// optional per-match skill gaps. Per request it costs at most three
// dispatcher calls: profile extraction, embedding, and one combined gap
// analysis over the top matches.
type Analyzer struct {
	provider ai.Provider
	ranker   Ranker
	prompts  config.PromptConfig
	maxChars int
	logger   *errors.Logger

	now func() time.Time
}

// NewAnalyzer wires a resume analyzer. maxChars caps the resume text that
// reaches prompts; 0 disables the cap.
func NewAnalyzer(provider ai.Provider, ranker Ranker, prompts config.PromptConfig, maxChars int, logger *errors.Logger) *Analyzer {
	return &Analyzer{
		provider: provider,
		ranker:   ranker,
		prompts:  prompts,
		maxChars: maxChars,
		logger:   logger,
		now:      time.Now,
	}
}

// Analyze runs the full request: profile, embedding, ranking, combined gap.
// Dispatcher exhaustion propagates unchanged for the HTTP layer to map onto
// its busy response.
func (a *Analyzer) Analyze(ctx context.Context, input types.AnalyzeResumeInput) (types.AnalyzeResumeOutput, error) {
	tracer := otel.Tracer("jobpulse.resume")
	ctx, span := tracer.Start(ctx, "resume.analyze")
	defer span.End()

	start := a.now()

	text := strings.TrimSpace(input.ResumeText)
	if text == "" {
		return types.AnalyzeResumeOutput{}, errors.NewInputError("resume text is empty", nil)
	}
	if a.maxChars > 0 && len(text) > a.maxChars {
		text = text[:a.maxChars]
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	minSimilarity := input.MinSimilarity
	if minSimilarity < 0 {
		minSimilarity = 0
	}
	if minSimilarity > 1 {
		minSimilarity = 1
	}
	gapDepth := input.GapDepth
	if gapDepth <= 0 {
		gapDepth = DefaultGapDepth
	}
	if gapDepth > limit {
		gapDepth = limit
	}

	span.SetAttributes(
		attribute.Int("resume.length", len(text)),
		attribute.Int("limit", limit),
		attribute.Float64("min_similarity", minSimilarity),
		attribute.Bool("include_gap", input.IncludeGap),
	)

	// Step 1: structured profile extraction.
	profile, err := a.extractProfile(ctx, text)
	if err != nil {
		span.RecordError(err)
		return types.AnalyzeResumeOutput{}, err
	}

	// Step 2: embed the profile.
	embedding, err := a.provider.Embed(ctx, profileEmbeddingInput(profile, text))
	if err != nil {
		span.RecordError(err)
		return types.AnalyzeResumeOutput{}, err
	}

	// Step 3: rank stored jobs.
	matches, err := a.ranker.Rank(ctx, embedding, limit, minSimilarity, types.MatchFilters{})
	if err != nil {
		span.RecordError(err)
		return types.AnalyzeResumeOutput{}, err
	}

	// Step 4: one combined gap analysis over the top matches.
	if input.IncludeGap && len(matches) > 0 {
		depth := gapDepth
		if depth > len(matches) {
			depth = len(matches)
		}
		gaps, err := a.analyzeGaps(ctx, profile, matches[:depth])
		if err != nil {
			span.RecordError(err)
			return types.AnalyzeResumeOutput{}, err
		}
		for i := range gaps {
			matches[i].Gap = &gaps[i]
		}
	}

	span.SetAttributes(attribute.Int("matches", len(matches)))

	return types.AnalyzeResumeOutput{
		Profile:          profile,
		Matches:          matches,
		TotalMatches:     len(matches),
		ProcessingTimeMS: float64(a.now().Sub(start)) / float64(time.Millisecond),
	}, nil
}

// extractProfile runs the structured profile call and post-validates.
func (a *Analyzer) extractProfile(ctx context.Context, text string) (types.ResumeProfile, error) {
	loaded := config.GetLoadedPrompts()
	template := config.ResolvePrompt(loaded.ResumeProfile, a.prompts.ResumeProfile, ai.DefaultResumeProfilePrompt)
	prompt := fmt.Sprintf(template, text)

	var profile types.ResumeProfile
	if err := a.provider.GenerateStructured(ctx, prompt, ai.ResumeProfileShape, &profile); err != nil {
		return types.ResumeProfile{}, err
	}

	if profile.ExperienceYears < 0 {
		profile.ExperienceYears = 0
	}
	profile.Skills = ai.DedupeStrings(profile.Skills, 20)
	return profile, nil
}

// analyzeGaps issues the single combined gap call and splices the returned
// array back by position.
func (a *Analyzer) analyzeGaps(ctx context.Context, profile types.ResumeProfile, matches []types.MatchResult) ([]types.SkillGap, error) {
	var jobsBlock strings.Builder
	for i, m := range matches {
		desc := m.Job.Description
		if len(desc) > 300 {
			desc = desc[:300]
		}
		fmt.Fprintf(&jobsBlock, "Job %d:\n- Title: %s\n- Company: %s\n- Required Skills: %s\n- Description: %s\n\n",
			i+1, m.Job.Position, m.Job.Company, strings.Join(m.Job.Skills, ", "), desc)
	}

	loaded := config.GetLoadedPrompts()
	template := config.ResolvePrompt(loaded.SkillGap, a.prompts.SkillGap, ai.DefaultSkillGapPrompt)
	prompt := fmt.Sprintf(template,
		strings.Join(profile.Skills, ", "),
		profile.Summary,
		jobsBlock.String())

	text, err := a.provider.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var gaps []types.SkillGap
	if err := ai.DecodeJSON(text, &gaps); err != nil {
		return nil, err
	}
	if len(gaps) != len(matches) {
		return nil, errors.NewParseError(errors.ErrCodeResponseParseFailed,
			"gap analysis returned wrong number of entries", nil).
			WithContext("want", len(matches)).
			WithContext("got", len(gaps))
	}
	return gaps, nil
}

// profileEmbeddingInput renders the text the resume embedding is computed
// over: the structured profile first, then a slice of the raw text.
func profileEmbeddingInput(profile types.ResumeProfile, text string) string {
	const rawTextCap = 2000

	var b strings.Builder
	fmt.Fprintf(&b, "Professional Summary: %s\n\n", profile.Summary)
	fmt.Fprintf(&b, "Skills: %s\n\n", strings.Join(profile.Skills, ", "))
	fmt.Fprintf(&b, "Experience: %d years\n\n", profile.ExperienceYears)
	if len(profile.KeyStrengths) > 0 {
		fmt.Fprintf(&b, "Key Strengths: %s\n\n", strings.Join(profile.KeyStrengths, ", "))
	}
	if profile.Education != "" {
		fmt.Fprintf(&b, "Education: %s\n\n", profile.Education)
	}
	if len(profile.JobTitles) > 0 {
		fmt.Fprintf(&b, "Previous Roles: %s\n\n", strings.Join(profile.JobTitles, ", "))
	}
	if len(text) > rawTextCap {
		text = text[:rawTextCap]
	}
	fmt.Fprintf(&b, "Full Resume:\n%s", text)
	return b.String()
}
