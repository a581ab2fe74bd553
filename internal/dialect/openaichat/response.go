package openaichat

import (
	"encoding/json"
	"fmt"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// Object types.
const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
)

type wireResponse struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Provider          string       `json:"provider,omitempty"`
	Choices           []wireChoice `json:"choices"`
	Usage             *wireUsage   `json:"usage,omitempty"`
	ServiceTier       string       `json:"service_tier,omitempty"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
}

type wireChoice struct {
	Index        int                  `json:"index"`
	Message      wireAssistantMessage `json:"message"`
	FinishReason *string              `json:"finish_reason"`
}

type wireAssistantMessage struct {
	Role             string         `json:"role"`
	Content          *string        `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCalls        []wireToolCall `json:"tool_calls,omitempty"`
	Refusal          string         `json:"refusal,omitempty"`
}

type wireUsage struct {
	PromptTokens            int64                `json:"prompt_tokens"`
	CompletionTokens        int64                `json:"completion_tokens"`
	TotalTokens             int64                `json:"total_tokens"`
	PromptTokensDetails     *promptTokensDetails `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *complTokensDetails  `json:"completion_tokens_details,omitempty"`
}

type promptTokensDetails struct {
	CachedTokens     *int64 `json:"cached_tokens,omitempty"`
	CacheWriteTokens *int64 `json:"cache_write_tokens,omitempty"`
	AudioTokens      *int64 `json:"audio_tokens,omitempty"`
	ImageTokens      *int64 `json:"image_tokens,omitempty"`
	VideoTokens      *int64 `json:"video_tokens,omitempty"`
}

type complTokensDetails struct {
	ReasoningTokens *int64 `json:"reasoning_tokens,omitempty"`
	AudioTokens     *int64 `json:"audio_tokens,omitempty"`
	ImageTokens     *int64 `json:"image_tokens,omitempty"`
	VideoTokens     *int64 `json:"video_tokens,omitempty"`
}

// EncodeResponse renders a canonical response for the client. Split-out
// reasoning is returned as reasoning_content.
func EncodeResponse(resp *ir.Response) ([]byte, error) {
	w := wireResponse{
		ID:                resp.ID,
		Object:            ObjectCompletion,
		Created:           resp.Created,
		Model:             resp.Model,
		Provider:          resp.Provider,
		Choices:           make([]wireChoice, len(resp.Choices)),
		Usage:             encodeUsage(resp.Usage),
		ServiceTier:       resp.ServiceTier,
		SystemFingerprint: resp.SystemFingerprint,
	}
	for i, c := range resp.Choices {
		msg := wireAssistantMessage{
			Role:             string(c.Message.Role),
			ReasoningContent: c.Message.ReasoningText(),
			Refusal:          c.Message.Refusal,
		}
		if msg.Role == "" {
			msg.Role = string(ir.RoleAssistant)
		}
		if c.Message.Content != "" || len(c.Message.ToolCalls) == 0 {
			content := c.Message.Content
			msg.Content = &content
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		w.Choices[i] = wireChoice{Index: c.Index, Message: msg, FinishReason: optString(c.FinishReason)}
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return data, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// ChunkPayload is one client-facing stream chunk.
type ChunkPayload struct {
	ID       string
	Created  int64
	Model    string
	Provider string
	Choices  []ChunkChoice
	Usage    *ir.Usage
}

// ChunkChoice is the delta of one choice. ToolCalls is forwarded verbatim.
type ChunkChoice struct {
	Index        int
	Role         ir.Role
	Content      string
	Reasoning    string
	ToolCalls    json.RawMessage
	FinishReason string
}

type wireChunk struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Created  int64             `json:"created"`
	Model    string            `json:"model"`
	Provider string            `json:"provider,omitempty"`
	Choices  []wireChunkChoice `json:"choices"`
	Usage    *wireUsage        `json:"usage,omitempty"`
}

type wireChunkChoice struct {
	Index        int       `json:"index"`
	Delta        wireDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type wireDelta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        json.RawMessage `json:"tool_calls,omitempty"`
}

// EncodeChunk renders one stream chunk as JSON (without SSE framing).
func EncodeChunk(c ChunkPayload) ([]byte, error) {
	w := wireChunk{
		ID:       c.ID,
		Object:   ObjectChunk,
		Created:  c.Created,
		Model:    c.Model,
		Provider: c.Provider,
		Choices:  make([]wireChunkChoice, len(c.Choices)),
		Usage:    encodeUsage(c.Usage),
	}
	for i, ch := range c.Choices {
		w.Choices[i] = wireChunkChoice{
			Index: ch.Index,
			Delta: wireDelta{
				Role:             string(ch.Role),
				Content:          ch.Content,
				ReasoningContent: ch.Reasoning,
				ToolCalls:        ch.ToolCalls,
			},
			FinishReason: optString(ch.FinishReason),
		}
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk: %w", err)
	}
	return data, nil
}

func encodeUsage(u *ir.Usage) *wireUsage {
	if u == nil {
		return nil
	}
	w := &wireUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.TotalTokens,
	}
	pd := promptTokensDetails{
		CachedTokens:     u.CachedReadTextTokens,
		CacheWriteTokens: u.CachedWriteTextTokens,
		AudioTokens:      u.InputAudioTokens,
		ImageTokens:      u.InputImageTokens,
		VideoTokens:      u.InputVideoTokens,
	}
	if pd != (promptTokensDetails{}) {
		w.PromptTokensDetails = &pd
	}
	cd := complTokensDetails{
		ReasoningTokens: u.ReasoningTokens,
		AudioTokens:     u.OutputAudioTokens,
		ImageTokens:     u.OutputImageTokens,
		VideoTokens:     u.OutputVideoTokens,
	}
	if cd != (complTokensDetails{}) {
		w.CompletionTokensDetails = &cd
	}
	return w
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
