package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobpulse/internal/ai"
	"jobpulse/internal/config"
	"jobpulse/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// maxSkills caps the extracted skill list.
const maxSkills = 15

// Transformer turns a RawJob into an EnrichedJob through the dispatcher.
// Each enrichment is two coupled LLM calls: the structured extraction, then
// an embedding built from its output. The calls are sequential and the
// result is composed atomically; a failure in either call fails the whole
// transform so no partial enrichment reaches storage.
type Transformer struct {
	provider ai.Provider
	prompts  config.PromptConfig
	now      func() time.Time
}

// NewTransformer creates an enrichment transformer.
func NewTransformer(provider ai.Provider, prompts config.PromptConfig) *Transformer {
	return &Transformer{
		provider: provider,
		prompts:  prompts,
		now:      time.Now,
	}
}

// enrichResult is the structured half of an enrichment.
type enrichResult struct {
	Skills    []string `json:"skills"`
	Seniority string   `json:"seniority"`
	Summary   string   `json:"summary"`
}

// Enrich produces an EnrichedJob for raw. Dispatcher errors (exhausted,
// transport, parse) are re-raised unchanged; the caller decides policy.
// There is no heuristic fallback here: a fabricated enrichment poisons
// similarity ranking downstream.
func (t *Transformer) Enrich(ctx context.Context, raw types.RawJob) (types.EnrichedJob, error) {
	tracer := otel.Tracer("jobpulse.enrich")
	ctx, span := tracer.Start(ctx, "enrich.job")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", raw.ID),
		attribute.Int("description.length", len(raw.Description)),
	)

	// Step 1-2: structured extraction. An empty description still goes to
	// the model; it tends to extract from the position title alone, and an
	// empty skills list is an acceptable outcome.
	prompt := fmt.Sprintf(t.enrichPrompt(), raw.Position, raw.Description)

	var result enrichResult
	if err := t.provider.GenerateStructured(ctx, prompt, ai.EnrichJobShape, &result); err != nil {
		span.RecordError(err)
		return types.EnrichedJob{}, err
	}

	result.Skills = ai.DedupeStrings(result.Skills, maxSkills)
	if result.Seniority == "" {
		result.Seniority = types.SeniorityMid
	}

	// Step 3: embed the position plus what the extraction distilled.
	embedding, err := t.provider.Embed(ctx, embeddingInput(raw.Position, result.Summary, result.Skills))
	if err != nil {
		span.RecordError(err)
		return types.EnrichedJob{}, err
	}

	span.SetAttributes(
		attribute.Int("skills.count", len(result.Skills)),
		attribute.String("seniority", result.Seniority),
	)

	// Step 4: compose. created_at is assigned here on first write; the
	// storage upsert preserves it across re-enrichment.
	return types.EnrichedJob{
		RawJob:    raw,
		Skills:    result.Skills,
		Seniority: result.Seniority,
		Summary:   strings.TrimSpace(result.Summary),
		Embedding: embedding,
		CreatedAt: t.now().UTC(),
	}, nil
}

// enrichPrompt resolves the prompt template: file override, then inline
// config, then the built-in default.
func (t *Transformer) enrichPrompt() string {
	loaded := config.GetLoadedPrompts()
	return config.ResolvePrompt(loaded.EnrichJob, t.prompts.EnrichJob, ai.DefaultEnrichJobPrompt)
}

// embeddingInput renders the text the job embedding is computed over.
func embeddingInput(position, summary string, skills []string) string {
	var b strings.Builder
	b.WriteString(position)
	if summary != "" {
		b.WriteString(". ")
		b.WriteString(summary)
	}
	if len(skills) > 0 {
		b.WriteString(" Skills: ")
		b.WriteString(strings.Join(skills, ", "))
	}
	return b.String()
}
