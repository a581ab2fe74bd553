package quirks

import (
	"strings"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// cerebrasParams rewrites an OpenAI-shaped request into what the Cerebras
// chat endpoint accepts. Cerebras rejects penalties, logit bias and prompt
// cache keys outright, and response_format on reasoning models.
type cerebrasParams struct{ providers }

func (cerebrasParams) ID() string { return "cerebras-params" }

func (cerebrasParams) OnRequest(ctx *RequestContext) {
	req := ctx.Request

	if v, ok := req.Extensions.Get("reasoning_effort"); ok {
		if s, _ := v.(string); !validCerebrasEffort(s) {
			req.Extensions.Delete("reasoning_effort")
		}
	}

	if req.MaxTokens != nil && !req.Extensions.Has("max_completion_tokens") {
		req.SetExtension("max_completion_tokens", *req.MaxTokens)
		req.MaxTokens = nil
	}

	if r := req.Reasoning; r != nil {
		if r.MaxTokens != nil && !req.Extensions.Has("max_reasoning_tokens") {
			req.SetExtension("max_reasoning_tokens", *r.MaxTokens)
		}
		if effort, ok := cerebrasEffort(r); ok {
			req.SetExtension("reasoning_effort", effort)
		}
		// routed into reasoning_effort / max_reasoning_tokens
		req.Reasoning = nil
	}

	req.Messages = developerAsSystem(req.Messages)

	if req.ServiceTier == "standard" {
		req.ServiceTier = "default"
	}

	req.PromptCacheKey = ""
	req.SafetyIdentifier = ""
	req.FrequencyPenalty = nil
	req.PresencePenalty = nil
	req.LogitBias = nil

	if effort, _ := req.Extensions.Get("reasoning_effort"); effort != nil && effort != ir.EffortNone {
		req.ResponseFormat = nil
	}

	glm := strings.Contains(strings.ToLower(ctx.Model), "glm-4.7")
	for _, key := range []string{"clear_thinking", "disable_reasoning"} {
		if v, ok := req.Extensions.Get(key); !ok || v == nil {
			continue
		}
		if _, isBool := req.Extensions.Bool(key); !glm || !isBool {
			req.Extensions.Delete(key)
		}
	}
}

func cerebrasEffort(r *ir.Reasoning) (string, bool) {
	switch r.Effort {
	case ir.EffortNone:
		return ir.EffortNone, true
	case ir.EffortMinimal, ir.EffortLow:
		return ir.EffortLow, true
	case ir.EffortMedium:
		return ir.EffortMedium, true
	case ir.EffortHigh, ir.EffortXHigh:
		return ir.EffortHigh, true
	}
	if r.Enabled != nil {
		if *r.Enabled {
			return ir.EffortMedium, true
		}
		return ir.EffortNone, true
	}
	return "", false
}

func validCerebrasEffort(s string) bool {
	switch s {
	case ir.EffortNone, ir.EffortLow, ir.EffortMedium, ir.EffortHigh:
		return true
	}
	return false
}

// developerAsSystem returns messages with the developer role rewritten.
// The input slice is shared with the caller's request and is not modified.
func developerAsSystem(msgs []ir.Message) []ir.Message {
	idx := -1
	for i, m := range msgs {
		if m.Role == ir.RoleDeveloper {
			idx = i
			break
		}
	}
	if idx < 0 {
		return msgs
	}
	out := append([]ir.Message(nil), msgs...)
	for i := idx; i < len(out); i++ {
		if out[i].Role == ir.RoleDeveloper {
			out[i].Role = ir.RoleSystem
		}
	}
	return out
}

var _ RequestQuirk = cerebrasParams{}
