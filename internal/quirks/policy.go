package quirks

import (
	"encoding/json"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/compresr/dialect-gateway/internal/ir"
)

// =============================================================================
// ALL PROVIDERS - numeric hygiene
// =============================================================================

// requestHygiene drops sampling values outside the ranges OpenAI-compatible
// hosts accept, and maps service_tier "standard" to "default".
type requestHygiene struct{ anyProvider }

func (requestHygiene) ID() string { return "request-hygiene" }

func (requestHygiene) OnRequest(ctx *RequestContext) {
	req := ctx.Request
	var dropped []string

	req.Temperature = inRange(req.Temperature, 0, 2, "temperature", &dropped)
	req.TopP = inRange(req.TopP, 0, 1, "top_p", &dropped)
	req.FrequencyPenalty = inRange(req.FrequencyPenalty, -2, 2, "frequency_penalty", &dropped)
	req.PresencePenalty = inRange(req.PresencePenalty, -2, 2, "presence_penalty", &dropped)
	if req.TopLogprobs != nil && (*req.TopLogprobs < 0 || *req.TopLogprobs > 20) {
		req.TopLogprobs = nil
		dropped = append(dropped, "top_logprobs")
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		req.MaxTokens = nil
		dropped = append(dropped, "max_tokens")
	}
	if v, ok := req.Extensions.Get("max_output_tokens"); ok && v != nil && !positiveInt(v) {
		req.Extensions.Delete("max_output_tokens")
		dropped = append(dropped, "max_output_tokens")
	}

	if req.ServiceTier == "standard" {
		req.ServiceTier = "default"
	}

	if len(dropped) > 0 {
		log.Debug().
			Str("provider", ctx.ProviderID).
			Strs("dropped", dropped).
			Msg("quirks: out of range parameters dropped")
	}
}

// inRange returns v, or nil when it is not a finite number in [lo, hi].
func inRange(v *float64, lo, hi float64, name string, dropped *[]string) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f < lo || f > hi {
		*dropped = append(*dropped, name)
		return nil
	}
	return v
}

func positiveInt(v any) bool {
	switch n := v.(type) {
	case int:
		return n > 0
	case int64:
		return n > 0
	case float64:
		return n > 0 && n == math.Trunc(n) && !math.IsInf(n, 0)
	default:
		return false
	}
}

// =============================================================================
// MISTRAL / GROQ / ANTHROPIC-FRONTED HOSTS - unsupported fields
// =============================================================================

// mistralParams maps seed to random_seed and drops fields the Mistral chat
// schema does not define. Mistral caps temperature at 1.5.
type mistralParams struct{ providers }

func (mistralParams) ID() string { return "mistral-params" }

func (mistralParams) OnRequest(ctx *RequestContext) {
	req := ctx.Request
	if req.Seed != nil {
		if v, ok := req.Extensions.Get("random_seed"); !ok || v == nil {
			req.SetExtension("random_seed", *req.Seed)
		}
		req.Seed = nil
	}
	// nil deletes the key the encoder adds for streams
	req.SetExtension("stream_options", nil)
	req.UserID = ""

	var dropped []string
	req.Temperature = inRange(req.Temperature, 0, 1.5, "temperature", &dropped)
}

// groqParams drops logprob controls and message names, which Groq rejects.
type groqParams struct{ providers }

func (groqParams) ID() string { return "groq-params" }

func (groqParams) OnRequest(ctx *RequestContext) {
	req := ctx.Request
	req.Logprobs = nil
	req.LogitBias = nil
	req.TopLogprobs = nil
	for i := range req.Messages {
		req.Messages[i].Name = ""
	}
}

// anthropicHostedParams mirrors Anthropic parameter limits for hosts that
// front Anthropic models behind an OpenAI-compatible surface.
type anthropicHostedParams struct{ providers }

func (anthropicHostedParams) ID() string { return "anthropic-hosted-params" }

func (anthropicHostedParams) OnRequest(ctx *RequestContext) {
	req := ctx.Request
	req.FrequencyPenalty = nil
	req.PresencePenalty = nil
	req.LogitBias = nil
	req.Logprobs = nil
	req.TopLogprobs = nil
}

// =============================================================================
// XAI / MINIMAX
// =============================================================================

// xaiServiceTier drops service_tier, which xAI rejects on chat.
type xaiServiceTier struct{ providers }

func (xaiServiceTier) ID() string { return "xai-service-tier" }

func (xaiServiceTier) OnRequest(ctx *RequestContext) {
	ctx.Request.ServiceTier = ""
}

// jsonSchemaFallback downgrades json_schema to json_object and states the
// schema in a leading system message, for upstreams that only understand
// the json_object envelope.
type jsonSchemaFallback struct{ providers }

func (jsonSchemaFallback) ID() string { return "json-schema-fallback" }

func (jsonSchemaFallback) OnRequest(ctx *RequestContext) {
	req := ctx.Request
	rf := req.ResponseFormat
	if rf == nil || rf.Type != ir.FormatJSONSchema {
		return
	}

	instruction := "Respond only with a JSON object."
	if len(rf.Schema) > 0 {
		if schema, err := json.Marshal(rf.Schema); err == nil {
			instruction = "Respond only with a JSON object that matches this JSON schema: " + string(schema)
		}
	}

	msgs := make([]ir.Message, 0, len(req.Messages)+1)
	msgs = append(msgs, ir.Message{
		Role:    ir.RoleSystem,
		Content: []ir.ContentPart{{Type: ir.PartText, Text: instruction}},
	})
	req.Messages = append(msgs, req.Messages...)
	req.ResponseFormat = &ir.ResponseFormat{Type: ir.FormatJSONObject}
}

var (
	_ RequestQuirk = requestHygiene{}
	_ RequestQuirk = mistralParams{}
	_ RequestQuirk = groqParams{}
	_ RequestQuirk = anthropicHostedParams{}
	_ RequestQuirk = xaiServiceTier{}
	_ RequestQuirk = jsonSchemaFallback{}
)
