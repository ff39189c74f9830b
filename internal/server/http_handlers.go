package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// healthHandler reports dispatcher pool state and collaborator
// reachability. Slot tokens never appear here; only counts by state.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := map[string]any{
		"status":  "healthy",
		"service": "jobpulse",
		"version": s.Version,
	}
	healthy := true

	if s.Dispatcher != nil {
		pool := s.Dispatcher.Status()
		response["dispatcher_pool"] = pool
		if pool.Healthy == 0 {
			// Every credential cooling means new work will queue or fail.
			response["dispatcher_state"] = "exhausted"
			healthy = false
		}
	}

	response["storage"] = s.checkCollaborator(ctx, s.Store, &healthy)
	response["cache"] = s.checkCollaborator(ctx, s.Cache, nil) // cache is best-effort; never degrades health

	status := http.StatusOK
	if !healthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, response)
}

// checkCollaborator pings one collaborator and optionally folds the result
// into the overall health flag.
func (s *Server) checkCollaborator(ctx context.Context, p Pinger, healthy *bool) map[string]any {
	if p == nil {
		return map[string]any{"configured": false}
	}
	if err := p.Ping(ctx); err != nil {
		if healthy != nil {
			*healthy = false
		}
		return map[string]any{
			"configured": true,
			"reachable":  false,
			"error":      err.Error(),
		}
	}
	return map[string]any{
		"configured": true,
		"reachable":  true,
	}
}

// statsHandler provides server statistics: rate limiting plus dispatcher
// counters.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"service": "jobpulse",
		"version": s.Version,
		"server": map[string]any{
			"max_upload_size_bytes": s.MaxUploadSize,
		},
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{"enabled": false}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	if s.Dispatcher != nil {
		response["dispatcher"] = s.Dispatcher.GetStats()
	}

	writeJSONResponse(w, 0, response)
}

// writeJSONResponse encodes v with an optional explicit status (0 leaves
// the default 200).
func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if status > 0 {
		w.WriteHeader(status)
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, errTitle, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   errTitle,
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
