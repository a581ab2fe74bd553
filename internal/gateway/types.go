// Package gateway types - constants and wire shapes of the HTTP surface.
//
// Types are defined here to keep handler.go focused on request flow.
package gateway

import (
	"time"
)

// =============================================================================
// HEADERS
// =============================================================================

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	// HeaderProvider selects the upstream provider explicitly.
	HeaderProvider = "X-Provider"

	// HeaderDebugTrace asks for a debug trace: "summary" or "full".
	HeaderDebugTrace = "X-Debug-Trace"

	// HeaderDebugTraceID names the trace to fetch from /debug/traces/{id}.
	HeaderDebugTraceID = "X-Debug-Trace-ID"

	// HeaderUpstreamID echoes the id the upstream gave its response.
	HeaderUpstreamID = "X-Upstream-ID"
)

// =============================================================================
// LIMITS
// =============================================================================

const (
	// MaxRequestBodySize bounds client request bodies (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// MaxRateLimitBuckets bounds the per-IP rate limiter state.
	MaxRateLimitBuckets = 10000

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
)

// =============================================================================
// ERRORS
// =============================================================================

// OpenAI-style error types.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeUpstream       = "upstream_error"
	ErrorTypeGateway        = "gateway_error"
	ErrorTypeRateLimit      = "rate_limit_error"
)

// errorBody is the OpenAI error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    *int   `json:"code,omitempty"` // upstream status when the upstream failed
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status    string   `json:"status"`
	Time      string   `json:"time"`
	Version   string   `json:"version"`
	Providers []string `json:"providers"`
	Traces    bool     `json:"debug_traces"`
}
