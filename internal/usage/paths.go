package usage

import "github.com/compresr/dialect-gateway/internal/ir"

// Key paths are gjson paths tried in order; the first finite number wins.
// Flat provider shapes come first, then the same keys nested under the
// common envelopes.

var inputPaths = withEnvelopes(
	"input_tokens",
	"input_text_tokens",
	"prompt_tokens",
	"promptTokenCount",
	"inputTokens",
	"prompt_eval_count",
)

var outputPaths = withEnvelopes(
	"output_tokens",
	"output_text_tokens",
	"completion_tokens",
	"candidatesTokenCount",
	"outputTokens",
	"eval_count",
)

var totalPaths = withEnvelopes(
	"total_tokens",
	"totalTokenCount",
	"totalTokens",
)

var requestPaths = withEnvelopes(
	"request_count",
	"requests",
	"num_requests",
)

// optionalPaths lists the sparse meters.
var optionalPaths = map[string][]string{
	ir.MeterReasoningTokens: withEnvelopes(
		"reasoning_tokens",
		"completion_tokens_details.reasoning_tokens",
		"output_tokens_details.reasoning_tokens",
		"thoughtsTokenCount",
		"thoughtTokenCount",
		"reasoningTokens",
	),
	ir.MeterCachedReadTextTokens: withEnvelopes(
		"cached_read_text_tokens",
		"prompt_tokens_details.cached_tokens",
		"input_tokens_details.cached_tokens",
		"cache_read_input_tokens",
		"prompt_cache_hit_tokens",
		"cachedContentTokenCount",
		"cachedInputTokens",
	),
	ir.MeterCachedWriteTextTokens: withEnvelopes(
		"cached_write_text_tokens",
		"cache_creation_input_tokens",
		"prompt_tokens_details.cache_write_tokens",
		"cachedWriteTokens",
	),
	ir.MeterInputImageTokens: withEnvelopes(
		"input_image_tokens",
		"prompt_tokens_details.image_tokens",
		"input_tokens_details.image_tokens",
		modality("promptTokensDetails", "IMAGE"),
	),
	ir.MeterInputAudioTokens: withEnvelopes(
		"input_audio_tokens",
		"prompt_tokens_details.audio_tokens",
		"input_tokens_details.audio_tokens",
		modality("promptTokensDetails", "AUDIO"),
	),
	ir.MeterInputVideoTokens: withEnvelopes(
		"input_video_tokens",
		"prompt_tokens_details.video_tokens",
		"input_tokens_details.video_tokens",
		modality("promptTokensDetails", "VIDEO"),
	),
	ir.MeterOutputImageTokens: withEnvelopes(
		"output_image_tokens",
		"completion_tokens_details.image_tokens",
		"output_tokens_details.image_tokens",
		modality("candidatesTokensDetails", "IMAGE"),
	),
	ir.MeterOutputAudioTokens: withEnvelopes(
		"output_audio_tokens",
		"completion_tokens_details.audio_tokens",
		"output_tokens_details.audio_tokens",
		modality("candidatesTokensDetails", "AUDIO"),
	),
	ir.MeterOutputVideoTokens: withEnvelopes(
		"output_video_tokens",
		"completion_tokens_details.video_tokens",
		"output_tokens_details.video_tokens",
		modality("candidatesTokensDetails", "VIDEO"),
	),
}

// envelopes are the objects usage is commonly nested under.
var envelopes = []string{"usage", "usageMetadata", "usage_metadata", "response.usage"}

func withEnvelopes(keys ...string) []string {
	out := make([]string, 0, len(keys)*(len(envelopes)+1))
	out = append(out, keys...)
	for _, env := range envelopes {
		for _, k := range keys {
			out = append(out, env+"."+k)
		}
	}
	return out
}

// modality builds a gjson query over a Gemini-style modality breakdown,
// e.g. promptTokensDetails.#(modality=="IMAGE").tokenCount.
func modality(list, name string) string {
	return list + `.#(modality=="` + name + `").tokenCount`
}
