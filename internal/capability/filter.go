// Package capability narrows IR requests to per-deployment allow-lists.
//
// DESIGN: A provider/model pairing may only accept some request fields. The
// operator lists them (wire names or canonical names) under capability_params
// and Filter copies exactly those onto a fresh request. Mandatory fields
// (model, messages, stream) always survive.
//
// FLOW:
//  1. Read the allow-list from request.allowlist, request.params or params
//  2. Normalize it to string entries (list, or object keys)
//  3. Copy each allowed field through the canonical copier table
//  4. Force-copy reasoning back when the allow-list dropped it
//
// Reasoning routing belongs to the provider quirks, not to capability gating,
// so an allow-list can never strip reasoning that a quirk depends on.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/config"
	"github.com/compresr/dialect-gateway/internal/ir"
)

// Result describes what Filter did.
type Result string

const (
	ResultPassthrough Result = "passthrough" // no allow-list configured
	ResultFiltered    Result = "filtered"    // request narrowed
	ResultMalformed   Result = "malformed"   // allow-list had an unusable shape
)

// copier copies one canonical field from src onto dst.
type copier func(dst, src *ir.Request)

// copiers is keyed by canonical field name.
var copiers = map[string]copier{
	"maxTokens":         func(d, s *ir.Request) { d.MaxTokens = s.MaxTokens },
	"temperature":       func(d, s *ir.Request) { d.Temperature = s.Temperature },
	"topP":              func(d, s *ir.Request) { d.TopP = s.TopP },
	"topK":              func(d, s *ir.Request) { d.TopK = s.TopK },
	"seed":              func(d, s *ir.Request) { d.Seed = s.Seed },
	"stop":              func(d, s *ir.Request) { d.Stop = s.Stop },
	"logitBias":         func(d, s *ir.Request) { d.LogitBias = s.LogitBias },
	"logprobs":          func(d, s *ir.Request) { d.Logprobs = s.Logprobs },
	"topLogprobs":       func(d, s *ir.Request) { d.TopLogprobs = s.TopLogprobs },
	"frequencyPenalty":  func(d, s *ir.Request) { d.FrequencyPenalty = s.FrequencyPenalty },
	"presencePenalty":   func(d, s *ir.Request) { d.PresencePenalty = s.PresencePenalty },
	"tools":             func(d, s *ir.Request) { d.Tools = s.Tools },
	"toolChoice":        func(d, s *ir.Request) { d.ToolChoice = s.ToolChoice },
	"parallelToolCalls": func(d, s *ir.Request) { d.ParallelToolCalls = s.ParallelToolCalls },
	"maxToolCalls":      func(d, s *ir.Request) { d.MaxToolCalls = s.MaxToolCalls },
	"responseFormat":    func(d, s *ir.Request) { d.ResponseFormat = s.ResponseFormat },
	"reasoning":         func(d, s *ir.Request) { d.Reasoning = s.Reasoning },
	"serviceTier":       func(d, s *ir.Request) { d.ServiceTier = s.ServiceTier },
	"promptCacheKey":    func(d, s *ir.Request) { d.PromptCacheKey = s.PromptCacheKey },
	"safetyIdentifier":  func(d, s *ir.Request) { d.SafetyIdentifier = s.SafetyIdentifier },
	"userId":            func(d, s *ir.Request) { d.UserID = s.UserID },
	"metadata":          func(d, s *ir.Request) { d.Metadata = s.Metadata },
}

// wireNames maps dialect field names to canonical names.
var wireNames = map[string]string{
	"max_tokens":            "maxTokens",
	"max_output_tokens":     "maxTokens",
	"max_completion_tokens": "maxTokens",
	"top_p":                 "topP",
	"top_k":                 "topK",
	"logit_bias":            "logitBias",
	"top_logprobs":          "topLogprobs",
	"frequency_penalty":     "frequencyPenalty",
	"presence_penalty":      "presencePenalty",
	"tool_choice":           "toolChoice",
	"parallel_tool_calls":   "parallelToolCalls",
	"max_tool_calls":        "maxToolCalls",
	"response_format":       "responseFormat",
	"service_tier":          "serviceTier",
	"prompt_cache_key":      "promptCacheKey",
	"safety_identifier":     "safetyIdentifier",
	"user":                  "userId",
	"user_id":               "userId",
}

// CanonicalName returns the canonical IR name for a wire or canonical entry.
// Unknown names are returned verbatim.
func CanonicalName(entry string) string {
	if name, ok := wireNames[entry]; ok {
		return name
	}
	return entry
}

// Filter narrows req to the allow-list in params. req itself is
// returned when there is nothing to filter; otherwise a new request is built
// and req is left untouched.
func Filter(req *ir.Request, params config.CapabilityParams) (*ir.Request, Result) {
	allowlist, ok := Allowlist(params)
	if !ok {
		return req, ResultMalformed
	}
	if len(allowlist) == 0 || req == nil {
		return req, ResultPassthrough
	}

	next := &ir.Request{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   req.Stream,
	}

	var reasoning *ir.Reasoning
	for _, entry := range allowlist {
		if root, leaf, dotted := strings.Cut(entry, "."); dotted {
			switch root {
			case "reasoning":
				if reasoning == nil {
					reasoning = &ir.Reasoning{}
				}
				copyReasoningLeaf(reasoning, req.Reasoning, leaf)
			case "responseFormat", "response_format":
				next.ResponseFormat = req.ResponseFormat
			}
			continue
		}

		name := CanonicalName(entry)
		if cp, ok := copiers[name]; ok {
			cp(next, req)
			continue
		}
		if v, ok := req.Extensions.Get(entry); ok {
			next.SetExtension(entry, v)
		}
	}

	if !reasoning.IsEmpty() {
		next.Reasoning = reasoning
	}
	if req.Reasoning != nil && next.Reasoning.IsEmpty() {
		next.Reasoning = req.Reasoning
	}

	return next, ResultFiltered
}

func copyReasoningLeaf(dst, src *ir.Reasoning, leaf string) {
	if src == nil {
		return
	}
	switch leaf {
	case "effort":
		dst.Effort = src.Effort
	case "summary":
		dst.Summary = src.Summary
	case "enabled":
		dst.Enabled = src.Enabled
	case "maxTokens", "max_tokens":
		dst.MaxTokens = src.MaxTokens
	}
}

// Allowlist extracts the allow-list entries from params. The second result is
// false when an allow-list is present but is neither a list nor an object;
// that case is logged and treated as empty.
func Allowlist(params config.CapabilityParams) ([]string, bool) {
	raw := rawAllowlist(params)
	if raw == nil {
		return nil, true
	}

	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case map[string]any:
		out := make([]string, 0, len(v))
		for _, key := range sortedKeys(v) {
			if sub, ok := v[key].(map[string]any); ok && key == "reasoning" {
				for _, subKey := range sortedKeys(sub) {
					out = append(out, "reasoning."+subKey)
				}
				continue
			}
			out = append(out, key)
		}
		return out, true
	default:
		log.Warn().
			Str("type", typeName(raw)).
			Msg("capability: allow-list is neither a list nor an object, filtering disabled")
		return nil, false
	}
}

func rawAllowlist(params config.CapabilityParams) any {
	if params == nil {
		return nil
	}
	if req, ok := params["request"].(map[string]any); ok {
		if v := req["allowlist"]; v != nil {
			return v
		}
		if v := req["params"]; v != nil {
			return v
		}
	}
	return params["params"]
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
