package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/config"
	"github.com/compresr/dialect-gateway/internal/dialect/openaichat"
	"github.com/compresr/dialect-gateway/internal/ir"
	"github.com/compresr/dialect-gateway/internal/monitoring"
)

const (
	// DefaultTimeout for upstream calls without a configured timeout.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large API responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500

	completionsPath = "/chat/completions"
)

// OpenAICompat calls OpenAI-compatible chat completions endpoints.
type OpenAICompat struct {
	providers config.ProvidersConfig
	client    *http.Client
}

// NewOpenAICompat creates an executor for the configured providers. If client
// is nil, a default client is used; timeouts come from the context.
func NewOpenAICompat(providers config.ProvidersConfig, client *http.Client) *OpenAICompat {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAICompat{providers: providers, client: client}
}

// Complete performs a non-streaming chat completion.
func (e *OpenAICompat) Complete(ctx context.Context, providerID string, req *ir.Request) (*Completion, error) {
	prov, err := e.provider(providerID)
	if err != nil {
		return nil, err
	}

	wire := req.Clone()
	wire.Stream = false

	ctx, cancel := context.WithTimeout(ctx, timeoutFor(prov))
	defer cancel()

	resp, err := e.do(ctx, providerID, prov, wire)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", providerID, err)
	}

	completion, err := DecodeCompletion(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", providerID, err)
	}
	return completion, nil
}

// Stream performs a streaming chat completion. The configured timeout bounds
// the wait for response headers only; the body is read until the upstream
// finishes or ctx is cancelled.
func (e *OpenAICompat) Stream(ctx context.Context, providerID string, req *ir.Request) (ChunkStream, error) {
	prov, err := e.provider(providerID)
	if err != nil {
		return nil, err
	}

	wire := req.Clone()
	wire.Stream = true

	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(timeoutFor(prov), cancel)

	resp, err := e.do(ctx, providerID, prov, wire)
	timer.Stop()
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ChunkStream: newSSEStream(providerID, resp.Body), cancel: cancel}, nil
}

func (e *OpenAICompat) provider(id string) (config.ProviderConfig, error) {
	prov, ok := e.providers.Get(id)
	if !ok {
		return config.ProviderConfig{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return prov, nil
}

// do sends the request and returns the response when the status is 2xx.
func (e *OpenAICompat) do(ctx context.Context, providerID string, prov config.ProviderConfig, req *ir.Request) (*http.Response, error) {
	body, err := openaichat.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", providerID, err)
	}

	endpoint := strings.TrimRight(prov.BaseURL, "/") + completionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", providerID, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if prov.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+prov.APIKey)
	}
	requestID := monitoring.RequestIDFromContext(ctx)
	if requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}
	for k, v := range prov.Headers {
		httpReq.Header.Set(k, v)
	}

	log.Debug().
		Str("request_id", requestID).
		Str("provider", providerID).
		Str("model", req.Model).
		Str("url", endpoint).
		Int("body_size", len(body)).
		Bool("stream", req.Stream).
		Msg("upstream: outgoing")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", providerID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen+1))
		msg := string(errBody)
		if len(msg) > maxErrorBodyLen {
			msg = msg[:maxErrorBodyLen] + "... (truncated)"
		}
		return nil, &StatusError{Provider: providerID, StatusCode: resp.StatusCode, Body: msg}
	}
	return resp, nil
}

func timeoutFor(prov config.ProviderConfig) time.Duration {
	if prov.Timeout > 0 {
		return prov.Timeout
	}
	return DefaultTimeout
}

// cancelOnClose releases the request context together with the body.
type cancelOnClose struct {
	ChunkStream
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ChunkStream.Close()
	c.cancel()
	return err
}

// Ensure OpenAICompat implements Executor
var _ Executor = (*OpenAICompat)(nil)
