package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/dialect-gateway/internal/config"
	"github.com/compresr/dialect-gateway/internal/ir"
)

func fullRequest() *ir.Request {
	return &ir.Request{
		Model:            "gpt-oss-120b",
		Messages:         []ir.Message{{Role: ir.RoleUser, Content: []ir.ContentPart{{Type: ir.PartText, Text: "hi"}}}},
		Stream:           true,
		Reasoning:        &ir.Reasoning{Effort: ir.EffortHigh, Summary: "auto", MaxTokens: ir.Ptr(256)},
		ResponseFormat:   &ir.ResponseFormat{Type: ir.FormatJSONObject},
		MaxTokens:        ir.Ptr(1024),
		Temperature:      ir.Ptr(0.7),
		TopP:             ir.Ptr(0.9),
		FrequencyPenalty: ir.Ptr(0.5),
		LogitBias:        map[string]float64{"1": 2},
		ToolChoice:       &ir.ToolChoice{Mode: ir.ToolChoiceAuto},
		UserID:           "user-1",
		Extensions:       ir.Extensions{"vendor_flag": true},
	}
}

func allow(entries ...any) config.CapabilityParams {
	return config.CapabilityParams{"request": map[string]any{"allowlist": entries}}
}

func TestFilter_NoAllowlistIsPassthrough(t *testing.T) {
	req := fullRequest()

	out, res := Filter(req, nil)
	assert.Same(t, req, out)
	assert.Equal(t, ResultPassthrough, res)

	out, res = Filter(req, allow())
	assert.Same(t, req, out)
	assert.Equal(t, ResultPassthrough, res)
}

func TestFilter_MalformedFailsOpen(t *testing.T) {
	req := fullRequest()
	for _, raw := range []any{"temperature", 42, true} {
		out, res := Filter(req, config.CapabilityParams{"params": raw})
		assert.Same(t, req, out)
		assert.Equal(t, ResultMalformed, res)
	}
}

func TestFilter_RemapsWireNames(t *testing.T) {
	req := fullRequest()

	out, res := Filter(req, allow("max_tokens", "top_p", "tool_choice", "user"))
	require.Equal(t, ResultFiltered, res)

	assert.Equal(t, req.Model, out.Model)
	assert.Equal(t, req.Messages, out.Messages)
	assert.True(t, out.Stream)
	assert.Equal(t, 1024, *out.MaxTokens)
	assert.Equal(t, 0.9, *out.TopP)
	assert.Equal(t, ir.ToolChoiceAuto, out.ToolChoice.Mode)
	assert.Equal(t, "user-1", out.UserID)

	assert.Nil(t, out.Temperature)
	assert.Nil(t, out.FrequencyPenalty)
	assert.Nil(t, out.LogitBias)
	assert.Nil(t, out.ResponseFormat)

	// source untouched
	assert.Equal(t, 0.7, *req.Temperature)
}

func TestFilter_CanonicalNamesAccepted(t *testing.T) {
	out, _ := Filter(fullRequest(), allow("maxTokens", "frequencyPenalty"))
	assert.Equal(t, 1024, *out.MaxTokens)
	assert.Equal(t, 0.5, *out.FrequencyPenalty)
}

func TestFilter_DottedReasoningCopiesLeaves(t *testing.T) {
	out, _ := Filter(fullRequest(), allow("temperature", "reasoning.effort"))
	require.NotNil(t, out.Reasoning)
	assert.Equal(t, ir.EffortHigh, out.Reasoning.Effort)
	assert.Empty(t, out.Reasoning.Summary)
	assert.Nil(t, out.Reasoning.MaxTokens)

	out, _ = Filter(fullRequest(), allow("reasoning.max_tokens"))
	assert.Equal(t, 256, *out.Reasoning.MaxTokens)
	assert.Empty(t, out.Reasoning.Effort)
}

func TestFilter_ObjectAllowlistExpandsReasoning(t *testing.T) {
	params := config.CapabilityParams{"params": map[string]any{
		"temperature": true,
		"reasoning":   map[string]any{"summary": true},
	}}

	entries, ok := Allowlist(params)
	require.True(t, ok)
	assert.Equal(t, []string{"reasoning.summary", "temperature"}, entries)

	out, _ := Filter(fullRequest(), params)
	assert.Equal(t, "auto", out.Reasoning.Summary)
	assert.Empty(t, out.Reasoning.Effort)
	assert.Equal(t, 0.7, *out.Temperature)
}

func TestFilter_ForceCopiesReasoning(t *testing.T) {
	req := fullRequest()

	out, _ := Filter(req, allow("temperature"))
	assert.Same(t, req.Reasoning, out.Reasoning)

	// a dotted leaf the source does not carry yields an empty config,
	// which is treated as dropped
	req.Reasoning = &ir.Reasoning{Summary: "detailed"}
	out, _ = Filter(req, allow("reasoning.effort"))
	assert.Same(t, req.Reasoning, out.Reasoning)

	req.Reasoning = nil
	out, _ = Filter(req, allow("temperature"))
	assert.Nil(t, out.Reasoning)
}

func TestFilter_ResponseFormatGate(t *testing.T) {
	out, _ := Filter(fullRequest(), allow("responseFormat.type"))
	require.NotNil(t, out.ResponseFormat)
	assert.Equal(t, ir.FormatJSONObject, out.ResponseFormat.Type)

	out, _ = Filter(fullRequest(), allow("response_format"))
	require.NotNil(t, out.ResponseFormat)
}

func TestFilter_UnknownKeysPassThroughExtensions(t *testing.T) {
	out, _ := Filter(fullRequest(), allow("vendor_flag", "not_present"))
	assert.Equal(t, []string{"vendor_flag"}, out.Extensions.Keys())
	assert.Equal(t, "not_present", CanonicalName("not_present"))
}

func TestFilter_AllowlistSources(t *testing.T) {
	tests := []struct {
		name   string
		params config.CapabilityParams
		want   []string
	}{
		{"request.allowlist", config.CapabilityParams{"request": map[string]any{"allowlist": []any{"a"}}}, []string{"a"}},
		{"request.params", config.CapabilityParams{"request": map[string]any{"params": []any{"b"}}}, []string{"b"}},
		{"params", config.CapabilityParams{"params": []string{"c"}}, []string{"c"}},
		{"allowlist wins", config.CapabilityParams{
			"request": map[string]any{"allowlist": []any{"a"}, "params": []any{"b"}},
			"params":  []any{"c"},
		}, []string{"a"}},
		{"non-string entries skipped", config.CapabilityParams{"params": []any{"a", 3, nil}}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Allowlist(tt.params)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_Idempotent(t *testing.T) {
	lists := []config.CapabilityParams{
		allow("temperature"),
		allow("max_tokens", "reasoning.effort", "vendor_flag"),
		allow("reasoning.summary", "responseFormat.type", "logit_bias"),
		{"params": map[string]any{"top_p": true, "reasoning": map[string]any{"max_tokens": true}}},
	}
	for _, params := range lists {
		once, _ := Filter(fullRequest(), params)
		twice, _ := Filter(once, params)
		assert.Equal(t, once, twice)
	}
}
