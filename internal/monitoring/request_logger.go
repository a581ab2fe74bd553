// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing:
//   - LogIncoming:  Request received from client (DEBUG)
//   - LogOutgoing:  Request forwarded to provider (DEBUG)
//   - LogResponse:  Response sent to client (DEBUG)
//   - LogRequest:   One summary line per completed request (INFO)
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// OutgoingRequestInfo contains outgoing request information.
type OutgoingRequestInfo struct {
	RequestID string
	Provider  string
	Model     string
	TargetURL string
	BodySize  int
	Stream    bool
}

// LogOutgoing logs an outgoing request.
func (rl *RequestLogger) LogOutgoing(info *OutgoingRequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Str("model", info.Model).
		Str("url", info.TargetURL).
		Int("body_size", info.BodySize).
		Bool("stream", info.Stream).
		Msg("outgoing")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// LogRequest logs the summary of a completed request.
func (rl *RequestLogger) LogRequest(ev *RequestEvent) {
	event := rl.logger.Info()
	if ev.Error != "" {
		event = rl.logger.Warn().Str("error", ev.Error)
	}
	event.
		Str("request_id", ev.RequestID).
		Str("provider", ev.Provider).
		Str("model", ev.Model).
		Str("upstream_id", ev.UpstreamID).
		Bool("stream", ev.Stream).
		Int("status", ev.StatusCode).
		Str("filter", ev.FilterResult).
		Strs("quirks", ev.Quirks).
		Int64("input_tokens", ev.InputTokens).
		Int64("output_tokens", ev.OutputTokens).
		Int64("total_tokens", ev.TotalTokens).
		Dur("latency", ev.Latency).
		Msg("request")
}
