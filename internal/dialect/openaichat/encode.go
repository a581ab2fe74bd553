package openaichat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireRequest struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`

	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
	Reasoning       *wireReasoning  `json:"reasoning,omitempty"`
	ResponseFormat  *wireRespFormat `json:"response_format,omitempty"`

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

	Tools             []wireTool `json:"tools,omitempty"`
	ToolChoice        any        `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool      `json:"parallel_tool_calls,omitempty"`
	MaxToolCalls      *int       `json:"max_tool_calls,omitempty"`

	ServiceTier      string            `json:"service_tier,omitempty"`
	PromptCacheKey   string            `json:"prompt_cache_key,omitempty"`
	SafetyIdentifier string            `json:"safety_identifier,omitempty"`
	User             string            `json:"user,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireReasoning struct {
	Effort    string `json:"effort,omitempty"`
	Summary   string `json:"summary,omitempty"`
	MaxTokens *int   `json:"max_tokens,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

type wireRespFormat struct {
	Type       string          `json:"type"`
	JSONSchema *wireJSONSchema `json:"json_schema,omitempty"`
}

type wireJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict *bool          `json:"strict,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// =============================================================================
// ENCODE
// =============================================================================

// EncodeRequest renders req as an OpenAI-compatible chat completions body.
// Extensions are applied last in sorted key order; dotted keys create nested
// objects and a nil value removes the field.
func EncodeRequest(req *ir.Request) ([]byte, error) {
	w := wireRequest{
		Model:             req.Model,
		Messages:          encodeMessages(req.Messages),
		Stream:            req.Stream,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		TopK:              req.TopK,
		FrequencyPenalty:  req.FrequencyPenalty,
		PresencePenalty:   req.PresencePenalty,
		Stop:              req.Stop,
		LogitBias:         req.LogitBias,
		Seed:              req.Seed,
		Logprobs:          req.Logprobs,
		TopLogprobs:       req.TopLogprobs,
		Tools:             encodeTools(req.Tools),
		ToolChoice:        encodeToolChoice(req.ToolChoice),
		ParallelToolCalls: req.ParallelToolCalls,
		MaxToolCalls:      req.MaxToolCalls,
		ServiceTier:       req.ServiceTier,
		PromptCacheKey:    req.PromptCacheKey,
		SafetyIdentifier:  req.SafetyIdentifier,
		User:              req.UserID,
		Metadata:          req.Metadata,
	}
	if req.Stream {
		w.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if r := req.Reasoning; !r.IsEmpty() {
		w.ReasoningEffort = r.Effort
		if r.Summary != "" || r.MaxTokens != nil || r.Enabled != nil {
			w.Reasoning = &wireReasoning{Effort: r.Effort, Summary: r.Summary, MaxTokens: r.MaxTokens, Enabled: r.Enabled}
		}
	}
	if rf := req.ResponseFormat; rf != nil {
		w.ResponseFormat = &wireRespFormat{Type: rf.Type}
		if rf.Type == ir.FormatJSONSchema {
			name := rf.Name
			if name == "" {
				name = "response"
			}
			w.ResponseFormat.JSONSchema = &wireJSONSchema{Name: name, Schema: rf.Schema, Strict: rf.Strict}
		}
	}

	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return applyExtensions(body, req.Extensions)
}

func applyExtensions(body []byte, ext ir.Extensions) ([]byte, error) {
	var err error
	for _, key := range ext.Keys() {
		path := escapePath(key)
		v := ext[key]
		if v == nil {
			body, err = sjson.DeleteBytes(body, path)
		} else {
			body, err = sjson.SetBytes(body, path, v)
		}
		if err != nil {
			return nil, fmt.Errorf("apply extension %q: %w", key, err)
		}
	}
	return body, nil
}

// escapePath escapes sjson wildcards so only dots act as separators.
func escapePath(key string) string {
	r := strings.NewReplacer("*", `\*`, "?", `\?`)
	return r.Replace(key)
}

func encodeMessages(msgs []ir.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    encodeContent(m.Content),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, wm)
	}
	return out
}

// encodeContent collapses text-only content into a plain string.
func encodeContent(parts []ir.ContentPart) any {
	if len(parts) == 0 {
		return nil
	}
	textOnly := true
	for _, p := range parts {
		if p.Type != ir.PartText {
			textOnly = false
			break
		}
	}
	if textOnly {
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.Text)
		}
		return b.String()
	}

	out := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case ir.PartText:
			out = append(out, map[string]any{"type": "text", "text": p.Text})
		case ir.PartImage:
			img := map[string]any{"url": mediaURL(p)}
			if p.Detail != "" {
				img["detail"] = p.Detail
			}
			out = append(out, map[string]any{"type": "image_url", "image_url": img})
		case ir.PartAudio:
			out = append(out, map[string]any{
				"type":        "input_audio",
				"input_audio": map[string]any{"data": p.Data, "format": strings.TrimPrefix(p.MimeType, "audio/")},
			})
		case ir.PartVideo:
			out = append(out, map[string]any{"type": "video_url", "video_url": map[string]any{"url": mediaURL(p)}})
		}
	}
	return out
}

func mediaURL(p ir.ContentPart) string {
	if p.URL != "" || p.Data == "" {
		return p.URL
	}
	return "data:" + p.MimeType + ";base64," + p.Data
}

func encodeTools(tools []ir.Tool) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, len(tools))
	for i, t := range tools {
		out[i] = wireTool{
			Type:     "function",
			Function: wireFunctionDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		}
	}
	return out
}

func encodeToolChoice(tc *ir.ToolChoice) any {
	if tc == nil {
		return nil
	}
	if tc.Name != "" {
		return map[string]any{"type": "function", "function": map[string]any{"name": tc.Name}}
	}
	if tc.Mode == "" {
		return nil
	}
	return tc.Mode
}
