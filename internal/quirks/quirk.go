// Package quirks applies small provider-specific patches to requests and
// responses.
//
// DESIGN: A quirk is a stateless value with an identity and a provider
// predicate. It may implement any of three hooks:
//
//   - RequestQuirk:  mutates the outgoing IR request in place
//   - ResponseQuirk: folds the upstream message into {main, reasoning}
//   - StreamQuirk:   supplies a per-stream delta transformer
//
// The Registry holds quirks in a fixed order. Requests converge to one shape
// (each quirk sees the previous one's edits). Responses fold: main is last
// writer wins, reasoning fragments accumulate, because reasoning may arrive
// from independent signals (a structured field and an inline tag block).
//
// To support a new provider: add a quirk value to Default(). Existing quirks
// are never edited for another provider's sake.
package quirks

import (
	"strings"

	"github.com/compresr/dialect-gateway/internal/ir"
	"github.com/compresr/dialect-gateway/internal/stream"
)

// Quirk is the identity and provider predicate every quirk implements.
type Quirk interface {
	ID() string
	Matches(providerID string) bool
}

// RequestQuirk mutates the outgoing request.
type RequestQuirk interface {
	Quirk
	OnRequest(ctx *RequestContext)
}

// ResponseQuirk folds upstream response content. Returning false means the
// quirk has nothing to contribute for this message.
type ResponseQuirk interface {
	Quirk
	OnResponse(ctx *ResponseContext) (Fold, bool)
}

// StreamQuirk supplies a transformer for one streamed choice.
type StreamQuirk interface {
	Quirk
	NewStreamTransformer(ctx *RequestContext) stream.Transformer
}

// RequestContext is passed to request and stream hooks.
type RequestContext struct {
	ProviderID string
	Model      string // resolved upstream model id
	Request    *ir.Request
}

// ResponseContext is passed to response hooks.
type ResponseContext struct {
	ProviderID  string
	Model       string
	ChoiceIndex int
	// RawContent is the upstream message text before any folding.
	RawContent string
	// Main is the main text as folded by the quirks that ran before.
	Main string
	// RawMessage is the upstream message object as JSON, read with gjson.
	RawMessage []byte
}

// Fold is one quirk's contribution to a response.
type Fold struct {
	Main      *string       // replaces main when set
	Reasoning []string      // appended
	ToolCalls []ir.ToolCall // appended; recovered from text
}

// FoldResult is the accumulated fold of all matching quirks.
type FoldResult struct {
	Main      string
	Reasoning []string
	ToolCalls []ir.ToolCall
	Applied   []string // ids of quirks that contributed
}

// anyProvider matches every provider.
type anyProvider struct{}

func (anyProvider) Matches(string) bool { return true }

// providers is a case-insensitive provider id set used by the built-ins.
type providers []string

func (p providers) Matches(providerID string) bool {
	for _, id := range p {
		if strings.EqualFold(id, providerID) {
			return true
		}
	}
	return false
}
