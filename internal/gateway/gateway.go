// Package gateway exposes the dialect pipeline over HTTP.
//
// DESIGN: The gateway is a thin shell around pipeline.Pipeline:
//
//	client JSON → openaichat.DecodeRequest → pipeline → openaichat.Encode* → client
//
// It resolves the provider, decides whether a debug trace is recorded and maps
// errors onto the OpenAI error envelope. All dialect logic lives below it.
//
// FILES:
//   - gateway.go:    Gateway, New, routes, Start/Shutdown
//   - handler.go:    chat completions, traces, health
//   - middleware.go: recovery, request id, logging, rate limiting, security
//   - types.go:      headers, limits, error envelope
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/config"
	"github.com/compresr/dialect-gateway/internal/monitoring"
	"github.com/compresr/dialect-gateway/internal/pipeline"
	"github.com/compresr/dialect-gateway/internal/store"
)

// Version is reported by /health; set at build time by cmd.
var Version = "dev"

// Deps are the collaborators of a Gateway. Traces and Metrics may be nil.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Traces   store.TraceStore
	Metrics  *monitoring.Metrics
	Logger   *monitoring.Logger
}

// Gateway is the HTTP front of the dialect pipeline.
type Gateway struct {
	cfg           *config.Config
	pipeline      *pipeline.Pipeline
	traces        store.TraceStore
	metrics       *monitoring.Metrics
	requestLogger *monitoring.RequestLogger
	rateLimiter   *rateLimiter
	server        *http.Server
}

// New creates a gateway for cfg.
func New(cfg *config.Config, deps Deps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = monitoring.New(monitoring.LoggerConfig{
			Level:  cfg.Monitoring.LogLevel,
			Format: cfg.Monitoring.LogFormat,
			Output: cfg.Monitoring.LogOutput,
		})
	}

	g := &Gateway{
		cfg:           cfg,
		pipeline:      deps.Pipeline,
		traces:        deps.Traces,
		metrics:       deps.Metrics,
		requestLogger: monitoring.NewRequestLogger(logger),
	}
	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit)
	}

	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      g.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g
}

// Handler returns the routed handler wrapped in the middleware chain.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("GET /debug/traces/{id}", g.handleTrace)
	mux.HandleFunc("GET /health", g.handleHealth)
	if g.cfg.Monitoring.MetricsEnabled {
		mux.Handle("GET "+g.cfg.Monitoring.MetricsRoute(), g.metrics.Handler())
	}

	var h http.Handler = mux
	h = g.security(h)
	h = g.loggingMiddleware(h)
	if g.rateLimiter != nil {
		h = g.rateLimit(h)
	}
	return g.panicRecovery(h)
}

// Start serves until Shutdown is called.
func (g *Gateway) Start() error {
	log.Info().
		Str("addr", g.server.Addr).
		Strs("providers", g.cfg.Providers.IDs()).
		Bool("debug_traces", g.tracingEnabled()).
		Msg("gateway: listening")

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Shutdown stops the server and releases the rate limiter.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.rateLimiter != nil {
		g.rateLimiter.stop()
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) tracingEnabled() bool {
	return g.cfg.DebugTrace.Enabled && g.traces != nil
}
