// Package upstream executes canonical requests against provider endpoints.
//
// DESIGN: The pipeline never speaks HTTP. It hands a prepared ir.Request to
// an Executor and gets back a Completion (or a ChunkStream) whose choices
// still carry the raw upstream message JSON, so response quirks can read
// provider-specific fields the canonical model has no slot for.
//
// FILES:
//   - executor.go: Executor interface, result types, errors
//   - openai.go:   OpenAICompat executor (POST {base_url}/chat/completions)
//   - decode.go:   gjson decoding of completions and stream chunks
//   - sse.go:      SSE chunk stream
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// ErrUnknownProvider is returned when no upstream is configured for an id.
var ErrUnknownProvider = errors.New("unknown provider")

// StatusError is returned when the upstream answers with a non-2xx status.
// Body is truncated.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Executor sends prepared requests upstream.
type Executor interface {
	// Complete performs a non-streaming call.
	Complete(ctx context.Context, providerID string, req *ir.Request) (*Completion, error)

	// Stream performs a streaming call. The caller must Close the stream.
	Stream(ctx context.Context, providerID string, req *ir.Request) (ChunkStream, error)
}

// Completion is a decoded non-streaming upstream response.
type Completion struct {
	NativeID          string
	Model             string
	Created           int64
	Choices           []RawChoice
	Usage             []byte // raw usage object, nil when the upstream sent none
	ServiceTier       string
	SystemFingerprint string
}

// RawChoice is one upstream choice before folding.
type RawChoice struct {
	Index        int
	Content      string
	Message      []byte // the raw message object
	FinishReason string
	StopSequence string
	ToolCalls    []ir.ToolCall
	Refusal      string
}

// Chunk is one decoded stream event.
type Chunk struct {
	NativeID string
	Model    string
	Created  int64
	Choices  []ChunkChoice
	Usage    []byte
}

// ChunkChoice is the delta of one choice in a chunk.
type ChunkChoice struct {
	Index        int
	Role         string
	Content      string
	Reasoning    string // structured reasoning delta (reasoning_content / reasoning)
	ToolCalls    json.RawMessage
	FinishReason string
}

// ChunkStream yields chunks until io.EOF.
type ChunkStream interface {
	Next() (*Chunk, error)
	Close() error
}
