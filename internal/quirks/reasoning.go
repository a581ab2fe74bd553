package quirks

import "strings"

// =============================================================================
// OPENAI - default reasoning summary
// =============================================================================

type openAIReasoningSummary struct{ providers }

func (openAIReasoningSummary) ID() string { return "openai-reasoning-summary" }

func (openAIReasoningSummary) OnRequest(ctx *RequestContext) {
	r := ctx.Request.Reasoning
	if r.Requested() && r.Summary == "" {
		r.Summary = "auto"
	}
}

// =============================================================================
// DEEPSEEK - thinking block
// =============================================================================

type deepseekThinking struct{ providers }

func (deepseekThinking) ID() string { return "deepseek-thinking" }

func (deepseekThinking) OnRequest(ctx *RequestContext) {
	req := ctx.Request
	if req.Extensions.Has("thinking") {
		return
	}
	switch {
	case req.Reasoning.Requested():
		req.SetExtension("thinking", map[string]any{"type": "enabled"})
	case req.Reasoning.Disabled():
		req.SetExtension("thinking", map[string]any{"type": "disabled"})
	}
}

// deepseekReasonerParams drops sampling fields reasoner models reject.
type deepseekReasonerParams struct{ providers }

func (deepseekReasonerParams) ID() string { return "deepseek-reasoner-params" }

func (deepseekReasonerParams) OnRequest(ctx *RequestContext) {
	if !strings.Contains(strings.ToLower(ctx.Model), "reasoner") {
		return
	}
	ctx.Request.Temperature = nil
	ctx.Request.TopP = nil
	ctx.Request.PresencePenalty = nil
}

// =============================================================================
// ALIBABA / QWEN - explicit enable_thinking
// =============================================================================

// alibabaThinkingDenyList holds model prefixes that reject enable_thinking.
var alibabaThinkingDenyList = []string{
	"qwen-max",
	"qwen-turbo",
	"qwen-vl",
	"qwen2.5",
	"qwq",
}

type alibabaEnableThinking struct {
	providers
	deny []string
}

func (alibabaEnableThinking) ID() string { return "alibaba-enable-thinking" }

func (q alibabaEnableThinking) OnRequest(ctx *RequestContext) {
	req := ctx.Request

	if req.MaxTokens != nil && !req.Extensions.Has("max_completion_tokens") {
		req.SetExtension("max_completion_tokens", *req.MaxTokens)
		req.MaxTokens = nil
	}

	if q.denied(ctx.Model) || req.Extensions.Has("enable_thinking") {
		return
	}
	req.SetExtension("enable_thinking", req.Reasoning.Requested())
}

func (q alibabaEnableThinking) denied(model string) bool {
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, prefix := range q.deny {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// XIAOMI - chat template kwargs
// =============================================================================

type xiaomiChatTemplate struct{ providers }

func (xiaomiChatTemplate) ID() string { return "xiaomi-chat-template" }

func (xiaomiChatTemplate) OnRequest(ctx *RequestContext) {
	if ctx.Request.Reasoning.Requested() {
		ctx.Request.SetExtension("chat_template_kwargs.enable_thinking", true)
	}
}

var (
	_ RequestQuirk = openAIReasoningSummary{}
	_ RequestQuirk = deepseekThinking{}
	_ RequestQuirk = deepseekReasonerParams{}
	_ RequestQuirk = alibabaEnableThinking{}
	_ RequestQuirk = xiaomiChatTemplate{}
)
