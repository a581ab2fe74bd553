package quirks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/dialect-gateway/internal/ir"
	"github.com/compresr/dialect-gateway/internal/stream"
)

func newRequest(model string) *ir.Request {
	return &ir.Request{
		Model:    model,
		Messages: []ir.Message{{Role: ir.RoleUser, Content: []ir.ContentPart{{Type: ir.PartText, Text: "hi"}}}},
	}
}

func applyTo(provider string, req *ir.Request) []string {
	return Default().ApplyRequestQuirks(&RequestContext{ProviderID: provider, Model: req.Model, Request: req})
}

// ===== REGISTRY =====

func TestDefault_Order(t *testing.T) {
	assert.Equal(t, []string{
		"request-hygiene",
		"mistral-params",
		"groq-params",
		"anthropic-hosted-params",
		"openai-reasoning-summary",
		"deepseek-thinking",
		"deepseek-reasoner-params",
		"alibaba-enable-thinking",
		"xiaomi-chat-template",
		"xai-service-tier",
		"cerebras-params",
		"json-schema-fallback",
		"structured-reasoning",
		"inline-think-tags",
		"minimax-tool-calls",
	}, Default().IDs())
}

func TestRegistry_UnmatchedProviderIsNoop(t *testing.T) {
	req := newRequest("m")
	req.Reasoning = &ir.Reasoning{Effort: ir.EffortHigh}
	req.Temperature = ir.Ptr(0.7)
	before := req.Clone()

	applied := applyTo("some-unknown-provider", req)
	assert.Equal(t, []string{"request-hygiene"}, applied, "only the all-provider quirk runs")
	assert.Equal(t, before, req)

	res := Default().ApplyResponseQuirks(&ResponseContext{ProviderID: "nobody", RawContent: "<think>x</think>y"})
	assert.Equal(t, "<think>x</think>y", res.Main)
	assert.Empty(t, res.Reasoning)

	assert.Equal(t, stream.Passthrough{}, Default().StreamTransformer(&RequestContext{ProviderID: "nobody"}))
}

func TestRegistry_MatchingIsCaseInsensitive(t *testing.T) {
	ids := func(qs []Quirk) []string {
		var out []string
		for _, q := range qs {
			out = append(out, q.ID())
		}
		return out
	}
	assert.Equal(t, []string{
		"request-hygiene",
		"json-schema-fallback",
		"structured-reasoning",
		"inline-think-tags",
		"minimax-tool-calls",
	}, ids(Default().Matching("MiniMax")))
}

type recordingQuirk struct {
	id    string
	log   *[]string
	main  *string
	extra []string
}

func (q recordingQuirk) ID() string           { return q.id }
func (q recordingQuirk) Matches(p string) bool { return p == "p" }
func (q recordingQuirk) OnRequest(ctx *RequestContext) {
	*q.log = append(*q.log, q.id)
	ctx.Request.SetExtension("last", q.id)
}
func (q recordingQuirk) OnResponse(*ResponseContext) (Fold, bool) {
	return Fold{Main: q.main, Reasoning: q.extra}, true
}

func TestRegistry_RequestOrderAndResponseFold(t *testing.T) {
	var calls []string
	one, two := "one", "two"
	r := NewRegistry(
		recordingQuirk{id: "a", log: &calls, main: &one, extra: []string{"r1"}},
		recordingQuirk{id: "b", log: &calls, extra: []string{"r2"}},
		recordingQuirk{id: "c", log: &calls, main: &two},
	)

	req := newRequest("m")
	applied := r.ApplyRequestQuirks(&RequestContext{ProviderID: "p", Request: req})
	assert.Equal(t, []string{"a", "b", "c"}, applied)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
	v, _ := req.Extensions.Get("last")
	assert.Equal(t, "c", v)

	res := r.ApplyResponseQuirks(&ResponseContext{ProviderID: "p", RawContent: "raw"})
	assert.Equal(t, "two", res.Main)
	assert.Equal(t, []string{"r1", "r2"}, res.Reasoning)
	assert.Equal(t, []string{"a", "b", "c"}, res.Applied)

	assert.Nil(t, r.ApplyRequestQuirks(nil))
}

// ===== REQUEST QUIRKS =====

func TestRequestHygiene(t *testing.T) {
	req := newRequest("m")
	req.Temperature = ir.Ptr(2.5)
	req.TopP = ir.Ptr(1.0)
	req.FrequencyPenalty = ir.Ptr(-3.0)
	req.PresencePenalty = ir.Ptr(math.NaN())
	req.TopLogprobs = ir.Ptr(21)
	req.MaxTokens = ir.Ptr(0)
	req.ServiceTier = "standard"
	req.Extensions = ir.Extensions{"max_output_tokens": 1.5}
	applyTo("openai", req)

	assert.Nil(t, req.Temperature)
	require.NotNil(t, req.TopP, "bounds are inclusive")
	assert.Equal(t, 1.0, *req.TopP)
	assert.Nil(t, req.FrequencyPenalty)
	assert.Nil(t, req.PresencePenalty)
	assert.Nil(t, req.TopLogprobs)
	assert.Nil(t, req.MaxTokens)
	assert.Equal(t, "default", req.ServiceTier)
	assert.False(t, req.Extensions.Has("max_output_tokens"))

	ok := newRequest("m")
	ok.Temperature = ir.Ptr(0.0)
	ok.TopLogprobs = ir.Ptr(5)
	ok.MaxTokens = ir.Ptr(1)
	ok.Extensions = ir.Extensions{"max_output_tokens": float64(256)}
	want := ok.Clone()
	applyTo("together", ok)
	assert.Equal(t, want, ok)
}

func TestMistralParams(t *testing.T) {
	req := newRequest("mistral-large-latest")
	req.Seed = ir.Ptr[int64](42)
	req.UserID = "u-1"
	req.Temperature = ir.Ptr(1.8)
	req.Stream = true
	applyTo("mistral", req)

	assert.Nil(t, req.Seed)
	v, _ := req.Extensions.Get("random_seed")
	assert.Equal(t, int64(42), v)
	v, ok := req.Extensions.Get("stream_options")
	assert.True(t, ok)
	assert.Nil(t, v, "nil removes stream_options from the wire body")
	assert.Empty(t, req.UserID)
	assert.Nil(t, req.Temperature)

	keep := newRequest("mistral-small")
	keep.Seed = ir.Ptr[int64](1)
	keep.Temperature = ir.Ptr(1.2)
	keep.Extensions = ir.Extensions{"random_seed": 7}
	applyTo("mistral", keep)
	assert.Equal(t, 7, keep.Extensions["random_seed"], "caller random_seed wins")
	assert.Equal(t, 1.2, *keep.Temperature)
}

func TestGroqParams(t *testing.T) {
	req := newRequest("llama-3.3-70b")
	req.Messages[0].Name = "alice"
	req.Logprobs = ir.Ptr(true)
	req.TopLogprobs = ir.Ptr(3)
	req.LogitBias = map[string]float64{"1": 2}
	applyTo("groq", req)

	assert.Empty(t, req.Messages[0].Name)
	assert.Nil(t, req.Logprobs)
	assert.Nil(t, req.TopLogprobs)
	assert.Nil(t, req.LogitBias)
}

func TestAnthropicHostedParams(t *testing.T) {
	for _, provider := range []string{"amazon-bedrock", "google-vertex"} {
		req := newRequest("claude-sonnet-4")
		req.FrequencyPenalty = ir.Ptr(0.1)
		req.PresencePenalty = ir.Ptr(0.1)
		req.LogitBias = map[string]float64{"1": 2}
		req.Logprobs = ir.Ptr(true)
		req.TopLogprobs = ir.Ptr(2)
		req.Temperature = ir.Ptr(0.4)
		applyTo(provider, req)

		assert.Nil(t, req.FrequencyPenalty, provider)
		assert.Nil(t, req.PresencePenalty, provider)
		assert.Nil(t, req.LogitBias, provider)
		assert.Nil(t, req.Logprobs, provider)
		assert.Nil(t, req.TopLogprobs, provider)
		assert.NotNil(t, req.Temperature, provider)
	}
}

func TestOpenAIReasoningSummary(t *testing.T) {
	req := newRequest("o3")
	req.Reasoning = &ir.Reasoning{Effort: ir.EffortLow}
	applyTo("openai", req)
	assert.Equal(t, "auto", req.Reasoning.Summary)

	req.Reasoning = &ir.Reasoning{Effort: ir.EffortLow, Summary: "detailed"}
	applyTo("azure", req)
	assert.Equal(t, "detailed", req.Reasoning.Summary)

	req.Reasoning = &ir.Reasoning{Effort: ir.EffortNone}
	applyTo("openai", req)
	assert.Empty(t, req.Reasoning.Summary)
}

func TestDeepseekThinking(t *testing.T) {
	tests := []struct {
		name      string
		reasoning *ir.Reasoning
		want      string
	}{
		{"absent", nil, ""},
		{"summary only", &ir.Reasoning{Summary: "auto"}, "enabled"},
		{"requested", &ir.Reasoning{Effort: ir.EffortHigh}, "enabled"},
		{"enabled", &ir.Reasoning{Enabled: ir.Ptr(true)}, "enabled"},
		{"disabled", &ir.Reasoning{Enabled: ir.Ptr(false), Effort: ir.EffortHigh}, "disabled"},
		{"effort none", &ir.Reasoning{Effort: ir.EffortNone}, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest("deepseek-chat")
			req.Reasoning = tt.reasoning
			applyTo("deepseek", req)
			v, ok := req.Extensions.Get("thinking")
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			assert.Equal(t, map[string]any{"type": tt.want}, v)
		})
	}

	req := newRequest("deepseek-chat")
	req.Reasoning = &ir.Reasoning{Effort: ir.EffortNone}
	req.Extensions = ir.Extensions{"thinking": map[string]any{"type": "enabled"}}
	applyTo("deepseek", req)
	assert.Equal(t, map[string]any{"type": "enabled"}, req.Extensions["thinking"], "caller value wins")
}

func TestDeepseekReasonerParams(t *testing.T) {
	req := newRequest("deepseek-reasoner")
	req.Temperature = ir.Ptr(0.3)
	req.TopP = ir.Ptr(0.5)
	req.PresencePenalty = ir.Ptr(0.1)
	req.Seed = ir.Ptr[int64](1)
	applyTo("deepseek", req)
	assert.Nil(t, req.Temperature)
	assert.Nil(t, req.TopP)
	assert.Nil(t, req.PresencePenalty)
	assert.NotNil(t, req.Seed)

	chat := newRequest("deepseek-chat")
	chat.Temperature = ir.Ptr(0.3)
	applyTo("deepseek", chat)
	assert.NotNil(t, chat.Temperature)
}

func TestAlibabaEnableThinking(t *testing.T) {
	req := newRequest("qwen3-235b-a22b")
	req.Reasoning = &ir.Reasoning{Effort: ir.EffortMedium}
	req.MaxTokens = ir.Ptr(100)
	applyTo("alibaba", req)

	v, ok := req.Extensions.Bool("enable_thinking")
	require.True(t, ok)
	assert.True(t, v)
	assert.Nil(t, req.MaxTokens)
	mct, _ := req.Extensions.Get("max_completion_tokens")
	assert.Equal(t, 100, mct)

	off := newRequest("qwen-plus")
	applyTo("qwen", off)
	v, ok = off.Extensions.Bool("enable_thinking")
	require.True(t, ok)
	assert.False(t, v)

	for _, model := range []string{"qwen-max-latest", "Qwen/qwq-32b", "qwen2.5-72b-instruct"} {
		denied := newRequest(model)
		denied.Reasoning = &ir.Reasoning{Effort: ir.EffortHigh}
		applyTo("alibaba", denied)
		assert.False(t, denied.Extensions.Has("enable_thinking"), model)
	}
}

func TestXiaomiChatTemplate(t *testing.T) {
	req := newRequest("mimo-7b")
	req.Reasoning = &ir.Reasoning{Enabled: ir.Ptr(true)}
	applyTo("xiaomi", req)
	v, ok := req.Extensions.Bool("chat_template_kwargs.enable_thinking")
	require.True(t, ok)
	assert.True(t, v)

	plain := newRequest("mimo-7b")
	applyTo("xiaomi", plain)
	assert.False(t, plain.Extensions.Has("chat_template_kwargs.enable_thinking"))
}

func TestXAIServiceTier(t *testing.T) {
	req := newRequest("grok-4")
	req.ServiceTier = "priority"
	applyTo("xai", req)
	assert.Empty(t, req.ServiceTier)
}

func TestCerebrasParams(t *testing.T) {
	msgs := []ir.Message{
		{Role: ir.RoleDeveloper, Content: []ir.ContentPart{{Type: ir.PartText, Text: "rules"}}},
		{Role: ir.RoleUser, Content: []ir.ContentPart{{Type: ir.PartText, Text: "hi"}}},
	}
	req := &ir.Request{
		Model:            "gpt-oss-120b",
		Messages:         msgs,
		Reasoning:        &ir.Reasoning{Effort: ir.EffortXHigh, MaxTokens: ir.Ptr(64)},
		ResponseFormat:   &ir.ResponseFormat{Type: ir.FormatJSONObject},
		MaxTokens:        ir.Ptr(512),
		FrequencyPenalty: ir.Ptr(0.1),
		PresencePenalty:  ir.Ptr(0.2),
		LogitBias:        map[string]float64{"1": 1},
		ServiceTier:      "standard",
		PromptCacheKey:   "k",
		SafetyIdentifier: "s",
		Extensions:       ir.Extensions{"clear_thinking": true},
	}
	applyTo("cerebras", req)

	assert.Nil(t, req.MaxTokens)
	assert.Nil(t, req.Reasoning)
	assert.Nil(t, req.FrequencyPenalty)
	assert.Nil(t, req.PresencePenalty)
	assert.Nil(t, req.LogitBias)
	assert.Nil(t, req.ResponseFormat)
	assert.Equal(t, "default", req.ServiceTier)
	assert.Empty(t, req.PromptCacheKey)
	assert.Empty(t, req.SafetyIdentifier)
	assert.Equal(t, ir.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, ir.RoleDeveloper, msgs[0].Role, "caller's slice is not mutated")

	ext := req.Extensions
	assert.Equal(t, ir.Extensions{
		"max_completion_tokens": 512,
		"max_reasoning_tokens":  64,
		"reasoning_effort":      "high",
	}, ext)
}

func TestCerebrasParams_EffortMapping(t *testing.T) {
	tests := []struct {
		reasoning *ir.Reasoning
		want      any
	}{
		{&ir.Reasoning{Effort: ir.EffortMinimal}, "low"},
		{&ir.Reasoning{Effort: ir.EffortMedium}, "medium"},
		{&ir.Reasoning{Effort: ir.EffortNone}, "none"},
		{&ir.Reasoning{Enabled: ir.Ptr(true)}, "medium"},
		{&ir.Reasoning{Enabled: ir.Ptr(false)}, "none"},
		{&ir.Reasoning{Summary: "auto"}, nil},
	}
	for _, tt := range tests {
		req := newRequest("llama-4")
		req.Reasoning = tt.reasoning
		req.ResponseFormat = &ir.ResponseFormat{Type: ir.FormatJSONObject}
		applyTo("cerebras", req)
		got, _ := req.Extensions.Get("reasoning_effort")
		assert.Equal(t, tt.want, got)
		if tt.want == nil || tt.want == "none" {
			assert.NotNil(t, req.ResponseFormat, "response format kept without reasoning")
		}
	}
}

func TestCerebrasParams_GLMExtensions(t *testing.T) {
	req := newRequest("zai-glm-4.7")
	req.Extensions = ir.Extensions{"clear_thinking": false, "disable_reasoning": "yes", "reasoning_effort": "extreme"}
	applyTo("cerebras", req)
	assert.True(t, req.Extensions.Has("clear_thinking"))
	assert.False(t, req.Extensions.Has("disable_reasoning"))
	assert.False(t, req.Extensions.Has("reasoning_effort"))

	other := newRequest("llama-3.3-70b")
	other.Extensions = ir.Extensions{"clear_thinking": true, "disable_reasoning": nil}
	applyTo("cerebras", other)
	assert.False(t, other.Extensions.Has("clear_thinking"))
	v, ok := other.Extensions.Get("disable_reasoning")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestJSONSchemaFallback(t *testing.T) {
	req := newRequest("MiniMax-M2")
	req.ResponseFormat = &ir.ResponseFormat{
		Type:   ir.FormatJSONSchema,
		Name:   "answer",
		Schema: map[string]any{"type": "object"},
	}
	applyTo("minimax", req)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, ir.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Text(), `{"type":"object"}`)
	assert.Equal(t, &ir.ResponseFormat{Type: ir.FormatJSONObject}, req.ResponseFormat)
}

// ===== RESPONSE QUIRKS =====

func TestStructuredReasoning(t *testing.T) {
	res := Default().ApplyResponseQuirks(&ResponseContext{
		ProviderID: "deepseek",
		RawContent: "answer",
		RawMessage: []byte(`{"role":"assistant","content":"answer","reasoning_content":"because"}`),
	})
	assert.Equal(t, "answer", res.Main)
	assert.Equal(t, []string{"because"}, res.Reasoning)

	res = Default().ApplyResponseQuirks(&ResponseContext{
		ProviderID: "groq",
		RawContent: "x",
		RawMessage: []byte(`{"reasoning":"alt field"}`),
	})
	assert.Equal(t, []string{"alt field"}, res.Reasoning)

	res = Default().ApplyResponseQuirks(&ResponseContext{
		ProviderID: "cerebras",
		RawContent: "x",
		RawMessage: []byte(`{"reasoning":{"summary":"object is ignored"}}`),
	})
	assert.Empty(t, res.Reasoning)

	for _, provider := range []string{"alibaba", "qwen", "xiaomi", "openai", "some-new-host"} {
		res = Default().ApplyResponseQuirks(&ResponseContext{
			ProviderID: provider,
			RawContent: "answer",
			RawMessage: []byte(`{"content":"answer","reasoning_content":"thought"}`),
		})
		assert.Equal(t, []string{"thought"}, res.Reasoning, provider)
		assert.Equal(t, "answer", res.Main, provider)
	}
}

func TestMinimax_ReasoningFromTwoSignals(t *testing.T) {
	res := Default().ApplyResponseQuirks(&ResponseContext{
		ProviderID: "minimax",
		RawContent: "<think>inline</think>Final",
		RawMessage: []byte(`{"content":"<think>inline</think>Final","reasoning_content":"structured"}`),
	})
	assert.Equal(t, "Final", res.Main)
	assert.Equal(t, []string{"structured", "inline"}, res.Reasoning)
	assert.Equal(t, []string{"structured-reasoning", "inline-think-tags"}, res.Applied)
}

func TestInlineThinkTags_NoTagsDoesNotContribute(t *testing.T) {
	res := Default().ApplyResponseQuirks(&ResponseContext{ProviderID: "aion", RawContent: "plain"})
	assert.Equal(t, "plain", res.Main)
	assert.Empty(t, res.Applied)
}

func TestMinimaxToolCalls_Invoke(t *testing.T) {
	raw := `<think>reasoning step</think><invoke name="get_weather"><parameter name="city">London</parameter></invoke>`
	res := Default().ApplyResponseQuirks(&ResponseContext{ProviderID: "minimax", RawContent: raw})

	assert.Equal(t, "", res.Main)
	assert.Equal(t, []string{"reasoning step"}, res.Reasoning)
	assert.Equal(t, []ir.ToolCall{{ID: "call_minimax_1", Name: "get_weather", Arguments: `{"city":"London"}`}}, res.ToolCalls)
	assert.Equal(t, []string{"inline-think-tags", "minimax-tool-calls"}, res.Applied)
}

func TestParseToolMarkup(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		main  string
		calls []ir.ToolCall
	}{
		{
			name: "text around invoke",
			text: `Checking. <invoke name='lookup'><parameter name="q"> go </parameter><parameter name="n">3</parameter></invoke> done`,
			main: "Checking.  done",
			calls: []ir.ToolCall{
				{ID: "call_minimax_1", Name: "lookup", Arguments: `{"n":"3","q":"go"}`},
			},
		},
		{
			name: "json body inside invoke",
			text: `<minimax:tool_call><invoke>{"name":"sum","arguments":{"a": 1, "b": 2}}</invoke></minimax:tool_call>`,
			calls: []ir.ToolCall{
				{ID: "call_minimax_1", Name: "sum", Arguments: `{"a":1,"b":2}`},
			},
		},
		{
			name: "unterminated invoke runs to end",
			text: `ok <INVOKE name="f"><parameter name="x">1</parameter>`,
			main: "ok",
			calls: []ir.ToolCall{
				{ID: "call_minimax_1", Name: "f", Arguments: `{"x":"1"}`},
			},
		},
		{
			name: "envelope array, duplicates removed",
			text: `<tool_calls>[{"name":"a","arguments":{"k":"v"}},{"name":"a","arguments":{"k":"v"}},{"name":"b"},{"nope":1}]</tool_calls>`,
			calls: []ir.ToolCall{
				{ID: "call_minimax_1", Name: "a", Arguments: `{"k":"v"}`},
				{ID: "call_minimax_2", Name: "b", Arguments: `{}`},
			},
		},
		{
			name: "malformed envelope is dropped from calls",
			text: `x<tool_calls>{broken</tool_calls>`,
			main: "x<tool_calls>{broken</tool_calls>",
		},
		{
			name: "invoke without a name",
			text: `a<invoke><parameter name="x">1</parameter></invoke>b`,
			main: "ab",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main, calls := parseToolMarkup(tt.text)
			assert.Equal(t, tt.main, main)
			assert.Equal(t, tt.calls, calls)
		})
	}
}

func TestMinimaxToolCalls_StreamMatchesBatch(t *testing.T) {
	text := `Sure<invoke name="get_weather"><parameter name="city">Paris</parameter></invoke>`
	wantMain, wantCalls := parseToolMarkup(text)

	for size := 1; size <= len(text); size++ {
		tr := Default().StreamTransformer(&RequestContext{ProviderID: "minimax"})
		var got stream.Delta
		for i := 0; i < len(text); i += size {
			end := i + size
			if end > len(text) {
				end = len(text)
			}
			got = got.Add(tr.Transform(stream.Delta{Content: text[i:end]}))
		}
		got = got.Add(tr.Flush())

		require.Equal(t, wantMain, got.Content, "chunk size %d", size)
		require.Equal(t, wantCalls, got.ToolCalls, "chunk size %d", size)
	}
}

func TestToolMarkupTransformer_HoldsOnlyMarkerPrefix(t *testing.T) {
	tr := &toolMarkupTransformer{}

	d := tr.Transform(stream.Delta{Content: "a < b <inv", Reasoning: "r"})
	assert.Equal(t, stream.Delta{Content: "a < b ", Reasoning: "r"}, d)

	d = tr.Transform(stream.Delta{Content: "entory"})
	assert.Equal(t, stream.Delta{Content: "<inventory"}, d, "false prefix is released")

	assert.Equal(t, stream.Delta{}, tr.Flush())
}

func TestStreamTransformer_FreshStatePerCall(t *testing.T) {
	reg := Default()
	ctx := &RequestContext{ProviderID: "minimax"}

	a := reg.StreamTransformer(ctx)
	b := reg.StreamTransformer(ctx)

	d := a.Transform(stream.Delta{Content: "<think>r"})
	assert.Equal(t, "r", d.Reasoning)

	d = b.Transform(stream.Delta{Content: "visible"})
	assert.Equal(t, "visible", d.Content)
}
