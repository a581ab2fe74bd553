package stream

import (
	"regexp"
	"strings"
)

// TagPair is the open/close marker pair around an inline reasoning block.
type TagPair struct {
	Open  string
	Close string
}

// DefaultTags is the <think>...</think> convention.
var DefaultTags = TagPair{Open: "<think>", Close: "</think>"}

// Valid reports whether both markers are non-empty. An invalid pair never
// matches, so all text stays main.
func (t TagPair) Valid() bool {
	return t.Open != "" && t.Close != ""
}

// =============================================================================
// INCREMENTAL PARSER
// =============================================================================

// ThinkState is the parse state of one stream. It is plain data so tests and
// callers can construct any intermediate state directly.
type ThinkState struct {
	InTaggedRegion bool
	// Carry holds a trailing fragment that may be the start of the next tag.
	Carry string
	// Segment accumulates the body of the currently open tagged region.
	Segment string
	// ReasoningChunks holds the bodies of completed tagged regions.
	ReasoningChunks []string
}

// ProcessDelta consumes text and returns the main and reasoning output that
// can be emitted now. Only the shortest undecidable suffix is held back.
func ProcessDelta(state *ThinkState, text string, tags TagPair) Delta {
	input := state.Carry + text
	state.Carry = ""
	if !tags.Valid() {
		return Delta{Content: input}
	}

	var main, reasoning strings.Builder
	for input != "" {
		if state.InTaggedRegion {
			if idx := strings.Index(input, tags.Close); idx >= 0 {
				reasoning.WriteString(input[:idx])
				state.Segment += input[:idx]
				state.closeSegment()
				input = input[idx+len(tags.Close):]
				continue
			}
			emit, held := splitPartial(input, tags.Close)
			reasoning.WriteString(emit)
			state.Segment += emit
			state.Carry = held
			break
		}

		if idx := strings.Index(input, tags.Open); idx >= 0 {
			main.WriteString(input[:idx])
			state.InTaggedRegion = true
			input = input[idx+len(tags.Open):]
			continue
		}
		emit, held := splitPartial(input, tags.Open)
		main.WriteString(emit)
		state.Carry = held
		break
	}

	return Delta{Content: main.String(), Reasoning: reasoning.String()}
}

// FlushState ends the stream. The carry is committed to whichever mode is
// active and an open region is closed as a reasoning chunk.
func FlushState(state *ThinkState) Delta {
	var out Delta
	if state.Carry != "" {
		if state.InTaggedRegion {
			out.Reasoning = state.Carry
			state.Segment += state.Carry
		} else {
			out.Content = state.Carry
		}
		state.Carry = ""
	}
	if state.InTaggedRegion {
		state.closeSegment()
	}
	return out
}

func (s *ThinkState) closeSegment() {
	if s.Segment != "" {
		s.ReasoningChunks = append(s.ReasoningChunks, s.Segment)
	}
	s.Segment = ""
	s.InTaggedRegion = false
}

// splitPartial returns text minus its longest suffix that is a proper prefix
// of tag, and that suffix.
func splitPartial(text, tag string) (emit, held string) {
	maxLen := len(tag) - 1
	if maxLen > len(text) {
		maxLen = len(text)
	}
	for n := maxLen; n > 0; n-- {
		if strings.HasSuffix(text, tag[:n]) {
			return text[:len(text)-n], text[len(text)-n:]
		}
	}
	return text, ""
}

// =============================================================================
// BATCH EXTRACTION
// =============================================================================

// Extracted is the result of a batch extraction.
type Extracted struct {
	Main      string
	Reasoning []string
}

// ExtractThinkBlocks splits a complete text into main text and the bodies of
// every tagged region. Stray unmatched markers are stripped from main.
func ExtractThinkBlocks(text string, tags TagPair) Extracted {
	if !tags.Valid() {
		return Extracted{Main: text}
	}
	re := tagPattern(tags)

	var out Extracted
	var main strings.Builder
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		main.WriteString(text[last:loc[0]])
		if body := text[loc[2]:loc[3]]; body != "" {
			out.Reasoning = append(out.Reasoning, body)
		}
		last = loc[1]
	}
	main.WriteString(text[last:])

	cleaned := strings.ReplaceAll(main.String(), tags.Open, "")
	out.Main = strings.ReplaceAll(cleaned, tags.Close, "")
	return out
}

func tagPattern(tags TagPair) *regexp.Regexp {
	if tags == DefaultTags {
		return defaultTagPattern
	}
	return compileTagPattern(tags)
}

var defaultTagPattern = compileTagPattern(DefaultTags)

func compileTagPattern(tags TagPair) *regexp.Regexp {
	return regexp.MustCompile(`(?s)` + regexp.QuoteMeta(tags.Open) + `(.*?)` + regexp.QuoteMeta(tags.Close))
}

// =============================================================================
// TRANSFORMER
// =============================================================================

// ThinkTransformer extracts inline tagged reasoning from streamed content.
// Reasoning that already arrives structured passes through untouched.
type ThinkTransformer struct {
	Tags  TagPair
	State ThinkState
}

// NewThinkTransformer returns a transformer for the given tags.
func NewThinkTransformer(tags TagPair) *ThinkTransformer {
	return &ThinkTransformer{Tags: tags}
}

func (t *ThinkTransformer) Transform(d Delta) Delta {
	out := ProcessDelta(&t.State, d.Content, t.Tags)
	out.Reasoning = d.Reasoning + out.Reasoning
	out.ToolCalls = d.ToolCalls
	return out
}

func (t *ThinkTransformer) Flush() Delta {
	return FlushState(&t.State)
}

var _ Transformer = (*ThinkTransformer)(nil)
