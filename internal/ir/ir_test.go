package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *Request {
	return &Request{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: RoleSystem, Content: []ContentPart{{Type: PartText, Text: "be brief"}}},
			{Role: RoleUser, Content: []ContentPart{{Type: PartText, Text: "hi "}, {Type: PartText, Text: "there"}}},
		},
		Reasoning:   &Reasoning{Effort: EffortHigh, MaxTokens: Ptr(512)},
		Temperature: Ptr(0.2),
		Stop:        []string{"END"},
		LogitBias:   map[string]float64{"42": 1},
		Extensions:  Extensions{"thinking": map[string]any{"type": "enabled"}},
	}
}

func TestRequest_Validate(t *testing.T) {
	assert.NoError(t, sampleRequest().Validate())

	r := sampleRequest()
	r.Model = "  "
	assert.ErrorIs(t, r.Validate(), ErrEmptyModel)

	r = sampleRequest()
	r.Messages = nil
	assert.ErrorIs(t, r.Validate(), ErrNoMessages)

	var nilReq *Request
	assert.ErrorIs(t, nilReq.Validate(), ErrEmptyModel)
}

func TestRequest_CloneIsDeep(t *testing.T) {
	orig := sampleRequest()
	c := orig.Clone()
	require.Equal(t, orig, c)

	*c.Temperature = 1.5
	c.Reasoning.Effort = EffortLow
	*c.Reasoning.MaxTokens = 1
	c.Stop[0] = "STOP"
	c.LogitBias["42"] = -1
	c.Messages[0].Content[0].Text = "changed"
	c.Extensions["thinking"].(map[string]any)["type"] = "disabled"

	assert.Equal(t, 0.2, *orig.Temperature)
	assert.Equal(t, EffortHigh, orig.Reasoning.Effort)
	assert.Equal(t, 512, *orig.Reasoning.MaxTokens)
	assert.Equal(t, "END", orig.Stop[0])
	assert.Equal(t, 1.0, orig.LogitBias["42"])
	assert.Equal(t, "be brief", orig.Messages[0].Content[0].Text)
	assert.Equal(t, "enabled", orig.Extensions["thinking"].(map[string]any)["type"])
}

func TestMessage_Text(t *testing.T) {
	r := sampleRequest()
	assert.Equal(t, "hi there", r.Messages[1].Text())
}

func TestReasoning_RequestedAndDisabled(t *testing.T) {
	tests := []struct {
		name      string
		reasoning *Reasoning
		requested bool
		disabled  bool
	}{
		{"nil", nil, false, false},
		{"empty", &Reasoning{}, false, false},
		{"effort high", &Reasoning{Effort: EffortHigh}, true, false},
		{"effort none", &Reasoning{Effort: EffortNone}, false, true},
		{"enabled true", &Reasoning{Enabled: Ptr(true)}, true, false},
		{"enabled false wins over effort", &Reasoning{Enabled: Ptr(false), Effort: EffortHigh}, false, true},
		{"summary only", &Reasoning{Summary: "auto"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.requested, tt.reasoning.Requested())
			assert.Equal(t, tt.disabled, tt.reasoning.Disabled())
		})
	}
}

func TestExtensions(t *testing.T) {
	var r Request
	r.SetExtension("b", true)
	r.SetExtension("a", 1)

	assert.Equal(t, []string{"a", "b"}, r.Extensions.Keys())
	v, ok := r.Extensions.Bool("b")
	assert.True(t, ok)
	assert.True(t, v)
	_, ok = r.Extensions.Bool("a")
	assert.False(t, ok)

	r.Extensions.Delete("a")
	assert.False(t, r.Extensions.Has("a"))

	var empty Extensions
	assert.False(t, empty.Has("x"))
	assert.Nil(t, empty.Clone())
}

func TestUsage_Meters(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, ReasoningTokens: Ptr[int64](3)}
	assert.Equal(t, map[string]int64{
		MeterInputTokens:     10,
		MeterOutputTokens:    5,
		MeterTotalTokens:     15,
		MeterReasoningTokens: 3,
	}, u.Meters())

	*u.Optional()[MeterRequests] = Ptr[int64](1)
	require.NotNil(t, u.Requests)
	assert.Equal(t, int64(1), *u.Requests)
}

func TestAssistantMessage_ReasoningText(t *testing.T) {
	m := AssistantMessage{Reasoning: []string{"step 1", "step 2"}}
	assert.Equal(t, "step 1step 2", m.ReasoningText())
}
