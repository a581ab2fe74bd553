// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by gateway/, pipeline/ and monitoring/.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Outcome, Phase:  Label values for metrics
//   - RequestEvent:    Summary of one request through the gateway
//   - Config types:    LoggerConfig
package monitoring

import "time"

// =============================================================================
// LABEL VALUES - Used by pipeline and metrics
// =============================================================================

// Outcome is the result of one upstream call.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeStatus    Outcome = "status_error"
	OutcomeCancelled Outcome = "cancelled"
)

// Phase is the pipeline phase a quirk ran in.
type Phase string

const (
	PhaseRequest  Phase = "request"
	PhaseResponse Phase = "response"
	PhaseStream   Phase = "stream"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// RequestEvent summarizes a request through the gateway.
type RequestEvent struct {
	RequestID    string        `json:"request_id"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model,omitempty"`
	UpstreamID   string        `json:"upstream_id,omitempty"`
	Stream       bool          `json:"stream"`
	StatusCode   int           `json:"status_code"`
	FilterResult string        `json:"filter_result,omitempty"`
	Quirks       []string      `json:"quirks,omitempty"`
	InputTokens  int64         `json:"input_tokens,omitempty"`
	OutputTokens int64         `json:"output_tokens,omitempty"`
	TotalTokens  int64         `json:"total_tokens,omitempty"`
	Latency      time.Duration `json:"latency"`
	Error        string        `json:"error,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}
