package ir

import "strings"

// Finish reasons.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
)

// AssistantMessage is the generated message of a choice.
// Reasoning holds split-out reasoning fragments in arrival order.
type AssistantMessage struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Reasoning []string   `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Refusal   string     `json:"refusal,omitempty"`
}

// ReasoningText joins the reasoning fragments.
func (m AssistantMessage) ReasoningText() string {
	return strings.Join(m.Reasoning, "")
}

// Choice is one generated alternative.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason,omitempty"`
	StopSequence string           `json:"stop_sequence,omitempty"`
}

// Response is the canonical chat response.
// ID is assigned by the gateway; NativeID preserves the upstream id.
type Response struct {
	ID                string   `json:"id"`
	NativeID          string   `json:"native_id,omitempty"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Provider          string   `json:"provider"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
	ServiceTier       string   `json:"service_tier,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}
