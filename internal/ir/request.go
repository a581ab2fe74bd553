// Package ir defines the canonical, dialect-neutral request/response model.
//
// DESIGN: Every inbound dialect decodes into ir.Request and every upstream
// response is folded into ir.Response. Filters, quirks, the usage normalizer
// and the debug differ only ever see these shapes:
//
//	client JSON → Request → [filter] → [quirks] → executor
//	executor    → Response → [fold] → [usage] → client JSON
//
// Provider-specific passthrough fields live in Request.Extensions, never in
// the canonical struct. Keeps canonical fields statically checked.
package ir

import (
	"errors"
	"strings"
)

// Sentinel validation errors.
var (
	ErrEmptyModel = errors.New("model is required")
	ErrNoMessages = errors.New("messages must not be empty")
)

// =============================================================================
// MESSAGES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Content part types.
const (
	PartText  = "text"
	PartImage = "image"
	PartAudio = "audio"
	PartVideo = "video"
)

// ContentPart is one piece of message content.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"` // base64 payload when inline
	MimeType string `json:"mime_type,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// ToolCall is an assistant request to execute a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// Message is a single conversation turn.
type Message struct {
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content,omitempty"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text joins the text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// =============================================================================
// REQUEST OPTIONS
// =============================================================================

// Reasoning effort levels.
const (
	EffortNone    = "none"
	EffortMinimal = "minimal"
	EffortLow     = "low"
	EffortMedium  = "medium"
	EffortHigh    = "high"
	EffortXHigh   = "xhigh"
)

// Reasoning configures o1-style and think-tag reasoning.
type Reasoning struct {
	Effort    string `json:"effort,omitempty"`
	Summary   string `json:"summary,omitempty"` // auto, concise, detailed
	Enabled   *bool  `json:"enabled,omitempty"`
	MaxTokens *int   `json:"max_tokens,omitempty"`
}

// IsEmpty reports whether no reasoning field is set.
func (r *Reasoning) IsEmpty() bool {
	return r == nil || (r.Effort == "" && r.Summary == "" && r.Enabled == nil && r.MaxTokens == nil)
}

// Requested reports whether the caller asked for reasoning and did not turn it off.
func (r *Reasoning) Requested() bool {
	if r.IsEmpty() {
		return false
	}
	if r.Enabled != nil {
		return *r.Enabled
	}
	return r.Effort != EffortNone
}

// Disabled reports whether reasoning was explicitly switched off.
func (r *Reasoning) Disabled() bool {
	if r == nil {
		return false
	}
	if r.Enabled != nil && !*r.Enabled {
		return true
	}
	return r.Effort == EffortNone
}

// Response format types.
const (
	FormatText       = "text"
	FormatJSONObject = "json_object"
	FormatJSONSchema = "json_schema"
)

// ResponseFormat constrains the output shape.
type ResponseFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict *bool          `json:"strict,omitempty"`
}

// Tool is a function definition.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// ToolChoice is either a mode or a specific function name.
type ToolChoice struct {
	Mode string `json:"mode,omitempty"`
	Name string `json:"name,omitempty"`
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is the canonical chat request.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`

	Reasoning      *Reasoning      `json:"reasoning,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	MaxTokens        *int               `json:"max_tokens,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	TopK             *int               `json:"top_k,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	Seed             *int64             `json:"seed,omitempty"`
	Logprobs         *bool              `json:"logprobs,omitempty"`
	TopLogprobs      *int               `json:"top_logprobs,omitempty"`

	Tools             []Tool      `json:"tools,omitempty"`
	ToolChoice        *ToolChoice `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool       `json:"parallel_tool_calls,omitempty"`
	MaxToolCalls      *int        `json:"max_tool_calls,omitempty"`

	ServiceTier      string            `json:"service_tier,omitempty"`
	PromptCacheKey   string            `json:"prompt_cache_key,omitempty"`
	SafetyIdentifier string            `json:"safety_identifier,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`

	Extensions Extensions `json:"extensions,omitempty"`
}

// Validate checks the request invariants.
func (r *Request) Validate() error {
	if r == nil || strings.TrimSpace(r.Model) == "" {
		return ErrEmptyModel
	}
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Messages = cloneMessages(r.Messages)
	if r.Reasoning != nil {
		c.Reasoning = r.Reasoning.Clone()
	}
	if r.ResponseFormat != nil {
		rf := *r.ResponseFormat
		rf.Schema = cloneMap(r.ResponseFormat.Schema)
		rf.Strict = clonePtr(r.ResponseFormat.Strict)
		c.ResponseFormat = &rf
	}
	c.MaxTokens = clonePtr(r.MaxTokens)
	c.Temperature = clonePtr(r.Temperature)
	c.TopP = clonePtr(r.TopP)
	c.TopK = clonePtr(r.TopK)
	c.FrequencyPenalty = clonePtr(r.FrequencyPenalty)
	c.PresencePenalty = clonePtr(r.PresencePenalty)
	c.Seed = clonePtr(r.Seed)
	c.Logprobs = clonePtr(r.Logprobs)
	c.TopLogprobs = clonePtr(r.TopLogprobs)
	c.ParallelToolCalls = clonePtr(r.ParallelToolCalls)
	c.MaxToolCalls = clonePtr(r.MaxToolCalls)
	if r.Stop != nil {
		c.Stop = append([]string(nil), r.Stop...)
	}
	if r.LogitBias != nil {
		c.LogitBias = make(map[string]float64, len(r.LogitBias))
		for k, v := range r.LogitBias {
			c.LogitBias[k] = v
		}
	}
	if r.Tools != nil {
		c.Tools = make([]Tool, len(r.Tools))
		for i, t := range r.Tools {
			t.Parameters = cloneMap(t.Parameters)
			c.Tools[i] = t
		}
	}
	if r.ToolChoice != nil {
		tc := *r.ToolChoice
		c.ToolChoice = &tc
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Extensions = r.Extensions.Clone()
	return &c
}

// Clone returns a copy of the reasoning config.
func (r *Reasoning) Clone() *Reasoning {
	if r == nil {
		return nil
	}
	c := *r
	c.Enabled = clonePtr(r.Enabled)
	c.MaxTokens = clonePtr(r.MaxTokens)
	return &c
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		if m.Content != nil {
			m.Content = append([]ContentPart(nil), m.Content...)
		}
		if m.ToolCalls != nil {
			m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
		out[i] = m
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
