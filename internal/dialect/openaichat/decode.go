// Package openaichat converts between the OpenAI chat completions wire format
// and the canonical request/response model.
//
// DESIGN: The gateway speaks one client dialect. Decoding reads the body with
// gjson so unknown top-level fields survive as Extensions instead of being
// silently dropped; encoding marshals the canonical fields and then merges
// Extensions on top with sjson, so whatever a quirk put there wins.
//
// FILES:
//   - decode.go:   client JSON -> ir.Request
//   - encode.go:   ir.Request -> upstream JSON
//   - response.go: ir.Response and stream chunks -> client JSON
package openaichat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// ErrInvalidRequest is returned for bodies that are not a usable chat request.
var ErrInvalidRequest = errors.New("invalid chat request")

// DecodeRequest parses an OpenAI chat completions body.
func DecodeRequest(body []byte) (*ir.Request, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidRequest)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidRequest)
	}

	d := &decoder{req: &ir.Request{}}
	root.ForEach(func(key, value gjson.Result) bool {
		d.field(key.String(), value)
		return d.err == nil
	})
	if d.err != nil {
		return nil, d.err
	}
	return d.req, nil
}

type decoder struct {
	req *ir.Request
	err error
}

func (d *decoder) fail(field, format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %s", ErrInvalidRequest, field, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) field(key string, v gjson.Result) {
	req := d.req
	if v.Type == gjson.Null && key != "messages" && key != "model" {
		return
	}

	switch key {
	case "model":
		req.Model = d.str(key, v)
	case "messages":
		if !v.IsArray() {
			d.fail(key, "expected array")
			return
		}
		for i, m := range v.Array() {
			req.Messages = append(req.Messages, d.message(fmt.Sprintf("messages[%d]", i), m))
		}
	case "stream":
		req.Stream = d.boolean(key, v)
	case "stream_options":
		// the gateway always asks upstreams for usage
	case "reasoning_effort":
		d.reasoning().Effort = strings.ToLower(d.str(key, v))
	case "reasoning":
		d.reasoningObject(v)
	case "response_format":
		d.responseFormat(v)
	case "max_tokens":
		if req.MaxTokens == nil {
			req.MaxTokens = d.intPtr(key, v)
		}
	case "max_completion_tokens":
		req.MaxTokens = d.intPtr(key, v)
	case "temperature":
		req.Temperature = d.floatPtr(key, v)
	case "top_p":
		req.TopP = d.floatPtr(key, v)
	case "top_k":
		req.TopK = d.intPtr(key, v)
	case "frequency_penalty":
		req.FrequencyPenalty = d.floatPtr(key, v)
	case "presence_penalty":
		req.PresencePenalty = d.floatPtr(key, v)
	case "stop":
		req.Stop = d.stop(v)
	case "logit_bias":
		if !v.IsObject() {
			d.fail(key, "expected object")
			return
		}
		req.LogitBias = map[string]float64{}
		v.ForEach(func(k, bias gjson.Result) bool {
			req.LogitBias[k.String()] = bias.Float()
			return true
		})
	case "seed":
		if v.Type != gjson.Number {
			d.fail(key, "expected number")
			return
		}
		req.Seed = ir.Ptr(v.Int())
	case "logprobs":
		req.Logprobs = ir.Ptr(d.boolean(key, v))
	case "top_logprobs":
		req.TopLogprobs = d.intPtr(key, v)
	case "tools":
		d.tools(v)
	case "tool_choice":
		d.toolChoice(v)
	case "parallel_tool_calls":
		req.ParallelToolCalls = ir.Ptr(d.boolean(key, v))
	case "max_tool_calls":
		req.MaxToolCalls = d.intPtr(key, v)
	case "service_tier":
		req.ServiceTier = d.str(key, v)
	case "prompt_cache_key":
		req.PromptCacheKey = d.str(key, v)
	case "safety_identifier":
		req.SafetyIdentifier = d.str(key, v)
	case "user":
		req.UserID = d.str(key, v)
	case "metadata":
		if !v.IsObject() {
			d.fail(key, "expected object")
			return
		}
		req.Metadata = map[string]string{}
		v.ForEach(func(k, val gjson.Result) bool {
			req.Metadata[k.String()] = val.String()
			return true
		})
	default:
		req.SetExtension(key, v.Value())
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

func (d *decoder) message(field string, m gjson.Result) ir.Message {
	if !m.IsObject() {
		d.fail(field, "expected object")
		return ir.Message{}
	}
	msg := ir.Message{
		Role:       ir.Role(m.Get("role").String()),
		Name:       m.Get("name").String(),
		ToolCallID: m.Get("tool_call_id").String(),
	}
	if msg.Role == "" {
		d.fail(field, "role is required")
	}

	content := m.Get("content")
	switch {
	case !content.Exists() || content.Type == gjson.Null:
	case content.Type == gjson.String:
		msg.Content = []ir.ContentPart{{Type: ir.PartText, Text: content.String()}}
	case content.IsArray():
		for _, p := range content.Array() {
			if part, ok := contentPart(p); ok {
				msg.Content = append(msg.Content, part)
			}
		}
	default:
		d.fail(field+".content", "expected string or array")
	}

	for _, tc := range m.Get("tool_calls").Array() {
		msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
	}
	return msg
}

func contentPart(p gjson.Result) (ir.ContentPart, bool) {
	if p.Type == gjson.String {
		return ir.ContentPart{Type: ir.PartText, Text: p.String()}, true
	}
	switch p.Get("type").String() {
	case "text", "input_text":
		return ir.ContentPart{Type: ir.PartText, Text: p.Get("text").String()}, true
	case "image_url":
		url := p.Get("image_url.url")
		if !url.Exists() {
			url = p.Get("image_url")
		}
		return ir.ContentPart{
			Type:   ir.PartImage,
			URL:    url.String(),
			Detail: p.Get("image_url.detail").String(),
		}, true
	case "input_audio":
		format := p.Get("input_audio.format").String()
		part := ir.ContentPart{Type: ir.PartAudio, Data: p.Get("input_audio.data").String()}
		if format != "" {
			part.MimeType = "audio/" + format
		}
		return part, true
	case "video_url":
		return ir.ContentPart{Type: ir.PartVideo, URL: p.Get("video_url.url").String()}, true
	}
	return ir.ContentPart{}, false
}

// =============================================================================
// OPTIONS
// =============================================================================

func (d *decoder) reasoning() *ir.Reasoning {
	if d.req.Reasoning == nil {
		d.req.Reasoning = &ir.Reasoning{}
	}
	return d.req.Reasoning
}

func (d *decoder) reasoningObject(v gjson.Result) {
	if !v.IsObject() {
		d.fail("reasoning", "expected object")
		return
	}
	r := d.reasoning()
	if e := v.Get("effort"); e.Exists() {
		r.Effort = strings.ToLower(e.String())
	}
	if s := v.Get("summary"); s.Exists() {
		r.Summary = s.String()
	}
	if en := v.Get("enabled"); en.IsBool() {
		r.Enabled = ir.Ptr(en.Bool())
	}
	if mt := v.Get("max_tokens"); mt.Type == gjson.Number {
		r.MaxTokens = ir.Ptr(int(mt.Int()))
	}
}

func (d *decoder) responseFormat(v gjson.Result) {
	if !v.IsObject() {
		d.fail("response_format", "expected object")
		return
	}
	rf := &ir.ResponseFormat{Type: v.Get("type").String()}
	if rf.Type == ir.FormatJSONSchema {
		rf.Name = v.Get("json_schema.name").String()
		if schema, ok := v.Get("json_schema.schema").Value().(map[string]any); ok {
			rf.Schema = schema
		}
		if strict := v.Get("json_schema.strict"); strict.IsBool() {
			rf.Strict = ir.Ptr(strict.Bool())
		}
	}
	d.req.ResponseFormat = rf
}

func (d *decoder) stop(v gjson.Result) []string {
	if v.Type == gjson.String {
		return []string{v.String()}
	}
	if !v.IsArray() {
		d.fail("stop", "expected string or array")
		return nil
	}
	var out []string
	for _, s := range v.Array() {
		out = append(out, s.String())
	}
	return out
}

func (d *decoder) tools(v gjson.Result) {
	if !v.IsArray() {
		d.fail("tools", "expected array")
		return
	}
	for _, t := range v.Array() {
		fn := t.Get("function")
		if !fn.Exists() {
			fn = t
		}
		tool := ir.Tool{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
		}
		if params, ok := fn.Get("parameters").Value().(map[string]any); ok {
			tool.Parameters = params
		}
		d.req.Tools = append(d.req.Tools, tool)
	}
}

func (d *decoder) toolChoice(v gjson.Result) {
	switch {
	case v.Type == gjson.String:
		d.req.ToolChoice = &ir.ToolChoice{Mode: v.String()}
	case v.IsObject():
		d.req.ToolChoice = &ir.ToolChoice{Name: v.Get("function.name").String()}
	default:
		d.fail("tool_choice", "expected string or object")
	}
}

// =============================================================================
// SCALARS
// =============================================================================

func (d *decoder) str(field string, v gjson.Result) string {
	if v.Type != gjson.String {
		d.fail(field, "expected string")
		return ""
	}
	return v.String()
}

func (d *decoder) boolean(field string, v gjson.Result) bool {
	if !v.IsBool() {
		d.fail(field, "expected boolean")
		return false
	}
	return v.Bool()
}

func (d *decoder) intPtr(field string, v gjson.Result) *int {
	if v.Type != gjson.Number {
		d.fail(field, "expected number")
		return nil
	}
	return ir.Ptr(int(v.Int()))
}

func (d *decoder) floatPtr(field string, v gjson.Result) *float64 {
	if v.Type != gjson.Number {
		d.fail(field, "expected number")
		return nil
	}
	return ir.Ptr(v.Float())
}
