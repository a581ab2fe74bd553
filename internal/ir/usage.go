package ir

// Meter keys. These match the billing ledger's meter vocabulary.
const (
	MeterInputTokens           = "input_tokens"
	MeterOutputTokens          = "output_tokens"
	MeterTotalTokens           = "total_tokens"
	MeterReasoningTokens       = "reasoning_tokens"
	MeterCachedReadTextTokens  = "cached_read_text_tokens"
	MeterCachedWriteTextTokens = "cached_write_text_tokens"
	MeterInputImageTokens      = "input_image_tokens"
	MeterInputAudioTokens      = "input_audio_tokens"
	MeterInputVideoTokens      = "input_video_tokens"
	MeterOutputImageTokens     = "output_image_tokens"
	MeterOutputAudioTokens     = "output_audio_tokens"
	MeterOutputVideoTokens     = "output_video_tokens"
	MeterRequests              = "requests"
)

// Usage is canonical token usage. The three core counters are always
// present; the pointer meters are sparse. Requests is nil when the request
// count cannot be determined, which is not the same as zero.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`

	ReasoningTokens       *int64 `json:"reasoning_tokens,omitempty"`
	CachedReadTextTokens  *int64 `json:"cached_read_text_tokens,omitempty"`
	CachedWriteTextTokens *int64 `json:"cached_write_text_tokens,omitempty"`
	InputImageTokens      *int64 `json:"input_image_tokens,omitempty"`
	InputAudioTokens      *int64 `json:"input_audio_tokens,omitempty"`
	InputVideoTokens      *int64 `json:"input_video_tokens,omitempty"`
	OutputImageTokens     *int64 `json:"output_image_tokens,omitempty"`
	OutputAudioTokens     *int64 `json:"output_audio_tokens,omitempty"`
	OutputVideoTokens     *int64 `json:"output_video_tokens,omitempty"`

	Requests *int64 `json:"requests,omitempty"`
}

// Meters returns every present meter keyed by its ledger name.
func (u Usage) Meters() map[string]int64 {
	m := map[string]int64{
		MeterInputTokens:  u.InputTokens,
		MeterOutputTokens: u.OutputTokens,
		MeterTotalTokens:  u.TotalTokens,
	}
	for key, p := range u.optional() {
		if p != nil {
			m[key] = *p
		}
	}
	return m
}

// Optional returns pointers to the sparse meters keyed by ledger name,
// so callers can populate them by key.
func (u *Usage) Optional() map[string]**int64 {
	return map[string]**int64{
		MeterReasoningTokens:       &u.ReasoningTokens,
		MeterCachedReadTextTokens:  &u.CachedReadTextTokens,
		MeterCachedWriteTextTokens: &u.CachedWriteTextTokens,
		MeterInputImageTokens:      &u.InputImageTokens,
		MeterInputAudioTokens:      &u.InputAudioTokens,
		MeterInputVideoTokens:      &u.InputVideoTokens,
		MeterOutputImageTokens:     &u.OutputImageTokens,
		MeterOutputAudioTokens:     &u.OutputAudioTokens,
		MeterOutputVideoTokens:     &u.OutputVideoTokens,
		MeterRequests:              &u.Requests,
	}
}

func (u Usage) optional() map[string]*int64 {
	out := make(map[string]*int64)
	for k, p := range u.Optional() {
		out[k] = *p
	}
	return out
}
