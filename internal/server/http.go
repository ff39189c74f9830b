package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"jobpulse/internal/ai"
	"jobpulse/internal/config"
	jperrors "jobpulse/internal/errors"
	"jobpulse/internal/observability"
	"jobpulse/internal/resume"
	"jobpulse/internal/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Analyzer is the resume analysis entry point (C4).
type Analyzer interface {
	Analyze(ctx context.Context, input types.AnalyzeResumeInput) (types.AnalyzeResumeOutput, error)
}

// Pinger is the readiness slice of the storage and cache collaborators.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP surface: the resume match endpoint plus health and
// stats.
type Server struct {
	Host    string
	Port    string
	Version string

	AppConfig *config.Config

	Analyzer   Analyzer
	Dispatcher *ai.Dispatcher
	Extractor  resume.TextExtractor
	Store      Pinger
	Cache      Pinger

	APIKeys map[string]bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxUploadSize int64

	RateLimit   *config.RateLimitConfig
	RateLimiter *LimiterManager

	Metrics *observability.Metrics
	Obs     *observability.Manager

	Logger *jperrors.Logger

	httpServer *http.Server
}

// ServerConfig bundles the constructor parameters.
type ServerConfig struct {
	Version    string
	Analyzer   Analyzer
	Dispatcher *ai.Dispatcher
	Extractor  resume.TextExtractor
	Store      Pinger
	Cache      Pinger
	Obs        *observability.Manager
}

// NewServer creates a Server from application configuration.
func NewServer(appCfg *config.Config, cfg ServerConfig, logger *jperrors.Logger) *Server {
	apiKeyMap := make(map[string]bool)
	for _, key := range appCfg.Server.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *LimiterManager
	if appCfg.Server.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			appCfg.Server.RateLimit.RequestsPerMin,
			appCfg.Server.RateLimit.BurstCapacity,
			logger,
		)
	}

	var metrics *observability.Metrics
	if cfg.Obs != nil {
		metrics = cfg.Obs.GetMetrics()
	}

	return &Server{
		Host:          appCfg.Server.Host,
		Port:          appCfg.Server.Port,
		Version:       cfg.Version,
		AppConfig:     appCfg,
		Analyzer:      cfg.Analyzer,
		Dispatcher:    cfg.Dispatcher,
		Extractor:     cfg.Extractor,
		Store:         cfg.Store,
		Cache:         cfg.Cache,
		APIKeys:       apiKeyMap,
		ReadTimeout:   appCfg.Server.ReadTimeout,
		WriteTimeout:  appCfg.Server.WriteTimeout,
		IdleTimeout:   appCfg.Server.IdleTimeout,
		MaxUploadSize: appCfg.App.MaxUploadSize,
		RateLimit:     &appCfg.Server.RateLimit,
		RateLimiter:   rateLimiter,
		Metrics:       metrics,
		Obs:           cfg.Obs,
		Logger:        logger,
	}
}

// Start runs the server until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.setupRoutes()

	handler := http.Handler(mux)
	if s.Obs != nil {
		handler = otelhttp.NewHandler(mux, "jobpulse.http")
	}

	addr := s.Host + ":" + s.Port
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.ReadTimeout,
		WriteTimeout:      s.WriteTimeout,
		IdleTimeout:       s.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		tls := s.AppConfig.Server.TLS
		if tls.Enabled() {
			s.Logger.Info("HTTPS server listening", "addr", addr)
			errCh <- s.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		s.Logger.Info("HTTP server listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if s.RateLimiter != nil {
			s.RateLimiter.Close()
		}
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
