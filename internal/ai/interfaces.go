package ai

import (
	"context"

	"jobpulse/internal/types"
)

// Credential is an opaque provider credential token. It never appears in
// errors, logs, or metrics; slots are identified by index only.
type Credential string

// GenerateOptions are passed through to the provider on generation calls.
type GenerateOptions struct {
	Temperature     float32
	MaxOutputTokens int32
}

// LLMClient is the transport to the LLM provider. The dispatcher owns
// credential selection; the client only executes calls. Errors must be
// distinguishable into rate-limit, transport, and other (see classify.go).
type LLMClient interface {
	Generate(ctx context.Context, cred Credential, model, prompt string, opts GenerateOptions) (string, error)
	Embed(ctx context.Context, cred Credential, model, text string) ([]float64, error)
	Close() error
}

// Provider is the dispatcher surface consumed by the enrichment transform and
// the resume analyzer. Callers see a fresh result, an exhaustion error, or a
// transport/parse error; they never touch a credential.
type Provider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, prompt string, shape Shape, out any) error
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbeddingDim() int
}

// Ensure Dispatcher implements Provider
var _ Provider = (*Dispatcher)(nil)

// NormalizeSeniority maps free-form seniority strings onto the closed set,
// defaulting to Mid. Variants follow what job boards actually emit:
// entry/associate read as Junior, sr as Senior, principal/staff as Lead.
func NormalizeSeniority(s string) string {
	if types.ValidSeniority(s) {
		return s
	}
	lower := lowerTrim(s)
	switch {
	case containsAny(lower, "junior", "entry", "associate"):
		return types.SeniorityJunior
	case containsAny(lower, "senior", "sr"):
		return types.SenioritySenior
	case containsAny(lower, "lead", "principal", "staff"):
		return types.SeniorityLead
	default:
		return types.SeniorityMid
	}
}
