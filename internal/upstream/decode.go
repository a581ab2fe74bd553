package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// usageEnvelopes are where providers put the usage object, in lookup order.
var usageEnvelopes = []string{"usage", "usageMetadata", "usage_metadata", "x_groq.usage"}

// DecodeCompletion decodes a chat completions response body.
func DecodeCompletion(body []byte) (*Completion, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode completion: invalid JSON")
	}
	doc := gjson.ParseBytes(body)

	c := &Completion{
		NativeID:          doc.Get("id").String(),
		Model:             doc.Get("model").String(),
		Created:           doc.Get("created").Int(),
		Usage:             rawUsage(doc),
		ServiceTier:       doc.Get("service_tier").String(),
		SystemFingerprint: doc.Get("system_fingerprint").String(),
	}
	for i, ch := range doc.Get("choices").Array() {
		msg := ch.Get("message")
		rc := RawChoice{
			Index:        int(ch.Get("index").Int()),
			Content:      messageText(msg.Get("content")),
			FinishReason: ch.Get("finish_reason").String(),
			StopSequence: ch.Get("stop_reason").String(),
			Refusal:      msg.Get("refusal").String(),
			ToolCalls:    toolCalls(msg.Get("tool_calls")),
		}
		if !ch.Get("index").Exists() {
			rc.Index = i
		}
		if msg.Exists() {
			rc.Message = []byte(msg.Raw)
		}
		c.Choices = append(c.Choices, rc)
	}
	return c, nil
}

// DecodeChunk decodes one SSE data payload.
func DecodeChunk(data []byte) (*Chunk, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode chunk: invalid JSON")
	}
	doc := gjson.ParseBytes(data)

	c := &Chunk{
		NativeID: doc.Get("id").String(),
		Model:    doc.Get("model").String(),
		Created:  doc.Get("created").Int(),
		Usage:    rawUsage(doc),
	}
	for i, ch := range doc.Get("choices").Array() {
		delta := ch.Get("delta")
		cc := ChunkChoice{
			Index:        int(ch.Get("index").Int()),
			Role:         delta.Get("role").String(),
			Content:      messageText(delta.Get("content")),
			Reasoning:    reasoningText(delta),
			FinishReason: ch.Get("finish_reason").String(),
		}
		if !ch.Get("index").Exists() {
			cc.Index = i
		}
		if tc := delta.Get("tool_calls"); tc.IsArray() {
			cc.ToolCalls = json.RawMessage(tc.Raw)
		}
		c.Choices = append(c.Choices, cc)
	}
	return c, nil
}

func rawUsage(doc gjson.Result) []byte {
	for _, path := range usageEnvelopes {
		if u := doc.Get(path); u.IsObject() {
			return []byte(u.Raw)
		}
	}
	return nil
}

// messageText accepts string content and arrays of text parts.
func messageText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	var text string
	for _, p := range content.Array() {
		if p.Get("type").String() == "text" {
			text += p.Get("text").String()
		}
	}
	return text
}

func reasoningText(delta gjson.Result) string {
	for _, path := range []string{"reasoning_content", "reasoning"} {
		if r := delta.Get(path); r.Type == gjson.String {
			return r.Str
		}
	}
	return ""
}

func toolCalls(v gjson.Result) []ir.ToolCall {
	var out []ir.ToolCall
	for _, tc := range v.Array() {
		out = append(out, ir.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
	}
	return out
}
