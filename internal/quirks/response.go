package quirks

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/dialect-gateway/internal/stream"
)

// structuredReasoning appends reasoning the upstream returned as a message
// field (reasoning_content, or reasoning on some OpenAI-compatible hosts).
// It matches every provider, as streamed deltas carry the same fields for
// every provider.
type structuredReasoning struct{ anyProvider }

func (structuredReasoning) ID() string { return "structured-reasoning" }

func (structuredReasoning) OnResponse(ctx *ResponseContext) (Fold, bool) {
	if len(ctx.RawMessage) == 0 {
		return Fold{}, false
	}
	for _, path := range []string{"reasoning_content", "reasoning"} {
		r := gjson.GetBytes(ctx.RawMessage, path)
		if r.Type == gjson.String && r.Str != "" {
			return Fold{Reasoning: []string{r.Str}}, true
		}
	}
	return Fold{}, false
}

// inlineThinkTags splits <think> blocks out of visible text, both for whole
// messages and for streams.
type inlineThinkTags struct {
	providers
	tags stream.TagPair
}

func (inlineThinkTags) ID() string { return "inline-think-tags" }

func (q inlineThinkTags) OnResponse(ctx *ResponseContext) (Fold, bool) {
	if !strings.Contains(ctx.RawContent, q.tags.Open) && !strings.Contains(ctx.RawContent, q.tags.Close) {
		return Fold{}, false
	}
	ex := stream.ExtractThinkBlocks(ctx.RawContent, q.tags)
	return Fold{Main: &ex.Main, Reasoning: ex.Reasoning}, true
}

func (q inlineThinkTags) NewStreamTransformer(*RequestContext) stream.Transformer {
	return stream.NewThinkTransformer(q.tags)
}

var (
	_ ResponseQuirk = structuredReasoning{}
	_ ResponseQuirk = inlineThinkTags{}
	_ StreamQuirk   = inlineThinkTags{}
)
