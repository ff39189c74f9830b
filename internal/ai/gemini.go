package ai

import (
	"context"
	"fmt"
	"sync"

	"jobpulse/internal/errors"

	"google.golang.org/genai"
)

// GeminiClient implements LLMClient over the Google GenAI SDK. One SDK
// client is kept per credential; the dispatcher decides which credential
// serves each call.
type GeminiClient struct {
	mu      sync.Mutex
	clients map[Credential]*genai.Client
	logger  *errors.Logger
}

// Ensure GeminiClient implements LLMClient
var _ LLMClient = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini-backed LLM client. SDK clients are
// created lazily on first use of each credential.
func NewGeminiClient(logger *errors.Logger) *GeminiClient {
	return &GeminiClient{
		clients: make(map[Credential]*genai.Client),
		logger:  logger,
	}
}

// clientFor returns (creating if needed) the SDK client for a credential.
func (g *GeminiClient) clientFor(ctx context.Context, cred Credential) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[cred]; ok {
		return client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: string(cred),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	g.clients[cred] = client
	g.logger.Debug("Initialized genai client", "pool_clients", len(g.clients))
	return client, nil
}

// Generate implements LLMClient.
func (g *GeminiClient) Generate(ctx context.Context, cred Credential, model, prompt string, opts GenerateOptions) (string, error) {
	client, err := g.clientFor(ctx, cred)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		cfg.Temperature = &temp
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = opts.MaxOutputTokens
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}

	return result.Text(), nil
}

// Embed implements LLMClient.
func (g *GeminiClient) Embed(ctx context.Context, cred Credential, model, text string) ([]float64, error) {
	client, err := g.clientFor(ctx, cred)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	result, err := client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, err
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("provider returned no embeddings")
	}

	values := result.Embeddings[0].Values
	vec := make([]float64, len(values))
	for i, v := range values {
		vec[i] = float64(v)
	}
	return vec, nil
}

// Close implements LLMClient. The genai SDK holds no resources that need
// explicit release in single-shot usage.
func (g *GeminiClient) Close() error {
	return nil
}
