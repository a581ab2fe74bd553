package quirks

import (
	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/stream"
)

// Registry is an immutable, ordered list of quirks. It is safe for
// concurrent use because nothing in it changes after construction.
type Registry struct {
	quirks []Quirk
}

// NewRegistry creates a registry with the given quirks in order.
func NewRegistry(q ...Quirk) *Registry {
	return &Registry{quirks: append([]Quirk(nil), q...)}
}

// Default returns a registry with the built-in quirks.
func Default() *Registry {
	return NewRegistry(
		requestHygiene{},
		mistralParams{providers{"mistral"}},
		groqParams{providers{"groq"}},
		anthropicHostedParams{providers{"amazon-bedrock", "google-vertex"}},
		openAIReasoningSummary{providers{"openai", "azure"}},
		deepseekThinking{providers{"deepseek"}},
		deepseekReasonerParams{providers{"deepseek"}},
		alibabaEnableThinking{providers: providers{"alibaba", "qwen"}, deny: alibabaThinkingDenyList},
		xiaomiChatTemplate{providers{"xiaomi"}},
		xaiServiceTier{providers{"xai", "x-ai"}},
		cerebrasParams{providers{"cerebras"}},
		jsonSchemaFallback{providers{"minimax"}},
		structuredReasoning{},
		inlineThinkTags{providers: providers{"minimax", "aion", "novita", "groq", "together"}, tags: stream.DefaultTags},
		minimaxToolCalls{providers{"minimax"}},
	)
}

// IDs returns the quirk ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.quirks))
	for i, q := range r.quirks {
		ids[i] = q.ID()
	}
	return ids
}

// Matching returns the quirks that match providerID, in order.
func (r *Registry) Matching(providerID string) []Quirk {
	var out []Quirk
	for _, q := range r.quirks {
		if q.Matches(providerID) {
			out = append(out, q)
		}
	}
	return out
}

// ApplyRequestQuirks runs every matching request quirk in order against
// ctx.Request and returns the ids applied.
func (r *Registry) ApplyRequestQuirks(ctx *RequestContext) []string {
	if ctx == nil || ctx.Request == nil {
		return nil
	}
	var applied []string
	for _, q := range r.quirks {
		rq, ok := q.(RequestQuirk)
		if !ok || !q.Matches(ctx.ProviderID) {
			continue
		}
		rq.OnRequest(ctx)
		applied = append(applied, q.ID())
	}
	if len(applied) > 0 {
		log.Debug().
			Str("provider", ctx.ProviderID).
			Str("model", ctx.Model).
			Strs("quirks", applied).
			Msg("quirks: request quirks applied")
	}
	return applied
}

// ApplyResponseQuirks folds the upstream content. Main starts as the raw
// content; each matching quirk sees the main text folded so far in ctx.Main,
// may replace it, and may append reasoning and tool calls.
func (r *Registry) ApplyResponseQuirks(ctx *ResponseContext) FoldResult {
	res := FoldResult{Main: ctx.RawContent}
	for _, q := range r.quirks {
		rq, ok := q.(ResponseQuirk)
		if !ok || !q.Matches(ctx.ProviderID) {
			continue
		}
		ctx.Main = res.Main
		fold, ok := rq.OnResponse(ctx)
		if !ok {
			continue
		}
		if fold.Main != nil {
			res.Main = *fold.Main
		}
		res.Reasoning = append(res.Reasoning, fold.Reasoning...)
		res.ToolCalls = append(res.ToolCalls, fold.ToolCalls...)
		res.Applied = append(res.Applied, q.ID())
	}
	return res
}

// StreamTransformer builds the transformer chain for one streamed choice.
// Each call returns fresh state.
func (r *Registry) StreamTransformer(ctx *RequestContext) stream.Transformer {
	var ts []stream.Transformer
	for _, q := range r.quirks {
		sq, ok := q.(StreamQuirk)
		if !ok || !q.Matches(ctx.ProviderID) {
			continue
		}
		ts = append(ts, sq.NewStreamTransformer(ctx))
	}
	return stream.NewChain(ts...)
}
