package cli

import (
	"context"

	"jobpulse/internal/ai"
	"jobpulse/internal/cache"
	"jobpulse/internal/config"
	"jobpulse/internal/enrich"
	"jobpulse/internal/errors"
	"jobpulse/internal/match"
	"jobpulse/internal/observability"
	"jobpulse/internal/resume"
	"jobpulse/internal/store"
)

// buildDispatcher applies Vault secrets and constructs the dispatcher with
// the Gemini-backed client. This is the only place the credential pool is
// created; everything downstream receives the dispatcher by injection.
func buildDispatcher(cfg *config.Config, logger *errors.Logger) (*ai.Dispatcher, error) {
	if err := cfg.ApplyVaultSecrets(logger); err != nil {
		return nil, err
	}

	client := ai.NewGeminiClient(logger)
	return ai.NewDispatcher(cfg.AI, client, logger)
}

// buildObservability sets up tracing and metrics and starts the Prometheus
// endpoint.
func buildObservability(cfg *config.Config, version string) (*observability.Manager, error) {
	om, err := observability.NewManager(cfg.Observability, version)
	if err != nil {
		return nil, err
	}
	om.StartPrometheus()
	return om, nil
}

// buildStore connects storage and ensures the schema exists.
func buildStore(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*store.JobStore, error) {
	jobStore, err := store.NewJobStore(ctx, cfg.Postgres.URL, logger)
	if err != nil {
		return nil, err
	}
	if err := jobStore.EnsureSchema(ctx); err != nil {
		jobStore.Close()
		return nil, err
	}
	return jobStore, nil
}

// buildCache connects the best-effort cache. A connection failure is
// reported to the caller, who decides whether to run without caching.
func buildCache(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*cache.JobCache, error) {
	return cache.NewJobCache(ctx, cfg.Redis.URL, cfg.Redis.JobTTL, cfg.Redis.RecentSize, logger)
}

// buildAnalyzer wires the resume analyzer over dispatcher, matcher, and
// storage.
func buildAnalyzer(dispatcher *ai.Dispatcher, jobStore *store.JobStore, cfg *config.Config, logger *errors.Logger) *resume.Analyzer {
	matcher := match.NewMatcher(jobStore, cfg.AI.EmbeddingDim, logger)
	return resume.NewAnalyzer(dispatcher, matcher, cfg.AI.CustomPrompts, cfg.App.MaxResumeChars, logger)
}

// buildTransformer wires the enrichment transform.
func buildTransformer(dispatcher *ai.Dispatcher, cfg *config.Config) *enrich.Transformer {
	return enrich.NewTransformer(dispatcher, cfg.AI.CustomPrompts)
}

// startPromptWatcher starts hot reload of prompt override files when
// configured. Returns a stop function (no-op when watching is disabled).
func startPromptWatcher(cfg *config.Config, logger *errors.Logger) (func(), error) {
	watcher, err := config.NewPromptWatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	if watcher == nil {
		return func() {}, nil
	}
	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return watcher.Stop, nil
}
