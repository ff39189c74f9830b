package ai

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// isRateLimitSignal reports whether err is the provider telling us a
// credential's quota is spent: HTTP 429, RESOURCE_EXHAUSTED, or a quota
// message. Everything else is a transport failure and must not cool a slot.
func isRateLimitSignal(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}

	// The genai SDK does not always surface a structured error; fall back
	// to the provider's message markers.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}

// isTransientTransport reports whether a transport error is worth noting as
// retryable at higher layers (timeouts, connection failures, 5xx).
func isTransientTransport(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}
