package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/debugtrace"
	"github.com/compresr/dialect-gateway/internal/dialect/openaichat"
	"github.com/compresr/dialect-gateway/internal/ir"
	"github.com/compresr/dialect-gateway/internal/monitoring"
	"github.com/compresr/dialect-gateway/internal/pipeline"
	"github.com/compresr/dialect-gateway/internal/upstream"
)

// statusClientClosed is logged when the client went away mid-request.
const statusClientClosed = 499

// =============================================================================
// CHAT COMPLETIONS
// =============================================================================

// handleChatCompletions serves POST /v1/chat/completions.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := monitoring.RequestIDFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		g.writeError(w, "failed to read request", http.StatusBadRequest)
		return
	}

	req, err := openaichat.DecodeRequest(body)
	if err != nil {
		g.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	providerID, model, err := g.resolveProvider(r, req.Model)
	if err != nil {
		g.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	call := &pipeline.Call{
		RequestID:  requestID,
		ProviderID: providerID,
		Model:      model,
		Request:    req,
		TraceLevel: g.traceLevel(r),
	}
	if call.TraceLevel != "" {
		w.Header().Set(HeaderDebugTraceID, requestID)
	}

	ev := &monitoring.RequestEvent{
		RequestID: requestID,
		Provider:  providerID,
		Model:     model,
		Stream:    req.Stream,
	}
	defer func() {
		ev.Latency = time.Since(start)
		g.requestLogger.LogRequest(ev)
	}()

	if req.Stream {
		g.handleStreaming(w, r, call, ev)
		return
	}
	g.handleNonStreaming(w, r, call, ev)
}

func (g *Gateway) handleNonStreaming(w http.ResponseWriter, r *http.Request, call *pipeline.Call, ev *monitoring.RequestEvent) {
	res, err := g.pipeline.Complete(r.Context(), call)
	if err != nil {
		g.writeFailure(w, err, ev)
		return
	}
	ev.FilterResult = string(res.Prepared.FilterResult)
	ev.Quirks = append(append([]string(nil), res.Prepared.Quirks...), res.Quirks...)
	ev.UpstreamID = res.Response.NativeID
	recordTokens(ev, res.Response.Usage)

	data, err := openaichat.EncodeResponse(res.Response)
	if err != nil {
		g.writeFailure(w, err, ev)
		return
	}

	ev.StatusCode = http.StatusOK
	if res.Response.NativeID != "" {
		w.Header().Set(HeaderUpstreamID, res.Response.NativeID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleStreaming relays pipeline events as OpenAI chunks over SSE. Headers
// are committed on the first event, so errors before it still get a proper
// status code.
func (g *Gateway) handleStreaming(w http.ResponseWriter, r *http.Request, call *pipeline.Call, ev *monitoring.RequestEvent) {
	flusher, _ := w.(http.Flusher)
	started := false
	begin := func(upstreamID string) {
		if upstreamID != "" {
			w.Header().Set(HeaderUpstreamID, upstreamID)
			ev.UpstreamID = upstreamID
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		started = true
	}
	send := func(data []byte) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	res, err := g.pipeline.Stream(r.Context(), call, func(e *pipeline.Event) error {
		if !started {
			begin(e.NativeID)
		}
		data, err := openaichat.EncodeChunk(chunkPayload(e))
		if err != nil {
			return err
		}
		return send(data)
	})
	if err != nil {
		if !started {
			g.writeFailure(w, err, ev)
			return
		}
		ev.StatusCode = http.StatusOK
		ev.Error = err.Error()
		if r.Context().Err() != nil {
			return
		}
		_, detail := classify(err)
		data, _ := json.Marshal(errorBody{Error: detail})
		if sendErr := send(data); sendErr != nil {
			log.Debug().Err(sendErr).Str("request_id", call.RequestID).Msg("gateway: client disconnected")
		}
		return
	}

	if !started {
		begin(res.NativeID)
	}
	if err := send([]byte("[DONE]")); err != nil {
		log.Debug().Err(err).Str("request_id", call.RequestID).Msg("gateway: client disconnected")
	}

	ev.StatusCode = http.StatusOK
	ev.FilterResult = string(res.Prepared.FilterResult)
	ev.Quirks = append(append([]string(nil), res.Prepared.Quirks...), res.Quirks...)
	recordTokens(ev, &res.Usage)
}

func chunkPayload(e *pipeline.Event) openaichat.ChunkPayload {
	out := openaichat.ChunkPayload{
		ID:       e.ID,
		Created:  e.Created,
		Model:    e.Model,
		Provider: e.Provider,
		Choices:  make([]openaichat.ChunkChoice, len(e.Choices)),
		Usage:    e.Usage,
	}
	for i, c := range e.Choices {
		out.Choices[i] = openaichat.ChunkChoice{
			Index:        c.Index,
			Role:         c.Role,
			Content:      c.Delta.Content,
			Reasoning:    c.Delta.Reasoning,
			ToolCalls:    c.ToolCalls,
			FinishReason: c.FinishReason,
		}
	}
	return out
}

func recordTokens(ev *monitoring.RequestEvent, u *ir.Usage) {
	if u == nil {
		return
	}
	ev.InputTokens, ev.OutputTokens, ev.TotalTokens = u.InputTokens, u.OutputTokens, u.TotalTokens
}

// =============================================================================
// ROUTING
// =============================================================================

// resolveProvider picks the provider from the X-Provider header, falling back
// to a "provider/model" prefix. The returned model has the prefix removed.
func (g *Gateway) resolveProvider(r *http.Request, model string) (string, string, error) {
	if h := strings.TrimSpace(r.Header.Get(HeaderProvider)); h != "" {
		if _, ok := g.cfg.Providers.Get(h); !ok {
			return "", "", fmt.Errorf("%w: %q", upstream.ErrUnknownProvider, h)
		}
		if prefix, rest, ok := strings.Cut(model, "/"); ok && strings.EqualFold(prefix, h) {
			model = rest
		}
		return strings.ToLower(h), model, nil
	}

	if prefix, rest, ok := strings.Cut(model, "/"); ok && rest != "" {
		if _, known := g.cfg.Providers.Get(prefix); known {
			return strings.ToLower(prefix), rest, nil
		}
	}
	return "", "", fmt.Errorf("%w for model %q: set %s or use provider/model", upstream.ErrUnknownProvider, model, HeaderProvider)
}

// traceLevel reads X-Debug-Trace; tracing must also be enabled in config.
func (g *Gateway) traceLevel(r *http.Request) debugtrace.Level {
	raw := r.Header.Get(HeaderDebugTrace)
	if raw == "" || !g.tracingEnabled() {
		return ""
	}
	level, ok := debugtrace.ParseLevel(raw)
	if !ok {
		log.Debug().Str("value", raw).Msg("gateway: ignoring unknown debug trace level")
		return ""
	}
	return level
}

// =============================================================================
// TRACES & HEALTH
// =============================================================================

// handleTrace serves GET /debug/traces/{id}.
func (g *Gateway) handleTrace(w http.ResponseWriter, r *http.Request) {
	if !g.tracingEnabled() {
		g.writeError(w, "debug traces are disabled", http.StatusNotFound)
		return
	}
	trace, ok := g.traces.Get(r.PathValue("id"))
	if !ok {
		g.writeError(w, "trace not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Time:      time.Now().Format(time.RFC3339),
		Version:   Version,
		Providers: g.cfg.Providers.IDs(),
		Traces:    g.tracingEnabled(),
	})
}

// =============================================================================
// ERRORS
// =============================================================================

// classify maps a pipeline error onto a status code and error envelope.
func classify(err error) (int, errorDetail) {
	var se *upstream.StatusError
	switch {
	case errors.Is(err, openaichat.ErrInvalidRequest),
		errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, upstream.ErrUnknownProvider):
		return http.StatusBadRequest, errorDetail{Message: err.Error(), Type: ErrorTypeInvalidRequest}
	case errors.As(err, &se):
		status := se.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		msg := se.Body
		if msg == "" {
			msg = err.Error()
		}
		code := se.StatusCode
		return status, errorDetail{Message: msg, Type: ErrorTypeUpstream, Code: &code}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorDetail{Message: "upstream timed out", Type: ErrorTypeUpstream}
	case errors.Is(err, context.Canceled):
		return statusClientClosed, errorDetail{Message: "request cancelled", Type: ErrorTypeGateway}
	default:
		return http.StatusBadGateway, errorDetail{Message: "upstream request failed", Type: ErrorTypeGateway}
	}
}

// writeFailure writes the error envelope for err and records it on ev.
func (g *Gateway) writeFailure(w http.ResponseWriter, err error, ev *monitoring.RequestEvent) {
	status, detail := classify(err)
	ev.StatusCode = status
	ev.Error = err.Error()
	writeJSON(w, status, errorBody{Error: detail})
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: msg, Type: errorType(status)}})
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return ErrorTypeInvalidRequest
	case http.StatusNotFound:
		return ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	default:
		return ErrorTypeGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
