// Package stream transforms streamed completion deltas on their way back to
// the client.
//
// DESIGN: Every upstream chunk is split into a visible Content delta and a
// Reasoning delta. A Transformer sees each delta exactly once, must consume
// it fully and never block for more input. State that must survive across
// chunks (a half-received tag) is owned by the transformer of one stream and
// is never shared.
//
// FLOW:
//  1. Pipeline builds one Transformer per stream choice (quirks decide which)
//  2. Each upstream delta goes through Transform
//  3. At end of stream Flush releases whatever was held back
package stream

import "github.com/compresr/dialect-gateway/internal/ir"

// Delta is one piece of streamed output. ToolCalls carries complete calls a
// transformer recovered from text; upstream tool call deltas bypass it.
type Delta struct {
	Content   string        `json:"content,omitempty"`
	Reasoning string        `json:"reasoning,omitempty"`
	ToolCalls []ir.ToolCall `json:"tool_calls,omitempty"`
}

// IsEmpty reports whether the delta carries no text and no tool calls.
func (d Delta) IsEmpty() bool {
	return d.Content == "" && d.Reasoning == "" && len(d.ToolCalls) == 0
}

// Add appends other to d.
func (d Delta) Add(other Delta) Delta {
	return Delta{
		Content:   d.Content + other.Content,
		Reasoning: d.Reasoning + other.Reasoning,
		ToolCalls: append(append([]ir.ToolCall(nil), d.ToolCalls...), other.ToolCalls...),
	}
}

// Transformer rewrites streamed deltas.
type Transformer interface {
	// Transform handles one incoming delta and returns what may be emitted now.
	Transform(d Delta) Delta
	// Flush returns whatever is still held at end of stream.
	Flush() Delta
}

// Passthrough emits deltas unchanged.
type Passthrough struct{}

func (Passthrough) Transform(d Delta) Delta { return d }
func (Passthrough) Flush() Delta            { return Delta{} }

var _ Transformer = Passthrough{}

// Chain runs transformers in order; the output of one feeds the next.
type Chain []Transformer

// NewChain builds a chain, collapsing to Passthrough when empty and to the
// single transformer when there is only one.
func NewChain(ts ...Transformer) Transformer {
	switch len(ts) {
	case 0:
		return Passthrough{}
	case 1:
		return ts[0]
	default:
		return Chain(ts)
	}
}

func (c Chain) Transform(d Delta) Delta {
	for _, t := range c {
		d = t.Transform(d)
	}
	return d
}

// Flush drains each stage in order, pushing earlier leftovers through the
// later stages before flushing them.
func (c Chain) Flush() Delta {
	var out Delta
	for i, t := range c {
		if i > 0 && !out.IsEmpty() {
			out = t.Transform(out)
		}
		out = out.Add(t.Flush())
	}
	return out
}

var _ Transformer = Chain(nil)
