package quirks

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/dialect-gateway/internal/ir"
	"github.com/compresr/dialect-gateway/internal/stream"
)

// =============================================================================
// MINIMAX - tool calls written into text
// =============================================================================

// minimaxToolCalls recovers tool calls MiniMax writes into the message text,
// either as <invoke name="..."> XML or as a <tool_calls> JSON envelope. It is
// registered after inline-think-tags, so it only sees main text.
type minimaxToolCalls struct{ providers }

func (minimaxToolCalls) ID() string { return "minimax-tool-calls" }

func (minimaxToolCalls) OnResponse(ctx *ResponseContext) (Fold, bool) {
	if !hasToolMarkup(ctx.Main) {
		return Fold{}, false
	}
	main, calls := parseToolMarkup(ctx.Main)
	return Fold{Main: &main, ToolCalls: calls}, true
}

func (minimaxToolCalls) NewStreamTransformer(*RequestContext) stream.Transformer {
	return &toolMarkupTransformer{}
}

var (
	_ ResponseQuirk = minimaxToolCalls{}
	_ StreamQuirk   = minimaxToolCalls{}
)

// toolCallIDPrefix numbers recovered calls: call_minimax_1, call_minimax_2...
const toolCallIDPrefix = "call_minimax_"

// toolMarkers open a tool markup region. Matching is ASCII case-insensitive.
var toolMarkers = []string{"<invoke", "<tool_calls", "<minimax:tool_call"}

var (
	invokeBlockRe  = regexp.MustCompile(`(?is)<invoke\b.*?(?:</invoke>|</minimax:tool_call>|$)`)
	invokeOpenRe   = regexp.MustCompile(`(?i)<invoke\b([^>]*)>`)
	nameAttrRe     = regexp.MustCompile(`(?i)\bname\s*=\s*["']([^"']+)["']`)
	parameterRe    = regexp.MustCompile(`(?is)<parameter\b[^>]*\bname\s*=\s*["']([^"']+)["'][^>]*>(.*?)</parameter>`)
	invokeHeadRe   = regexp.MustCompile(`(?is)^.*?<invoke\b[^>]*>`)
	invokeTailRe   = regexp.MustCompile(`(?is)</invoke>.*$`)
	toolCallTailRe = regexp.MustCompile(`(?is)</minimax:tool_call>.*$`)
	envelopeRe     = regexp.MustCompile(`(?is)<tool_calls[^>]*>(.*?)</tool_calls>`)
	danglingTagRe  = regexp.MustCompile(`(?i)</?minimax:tool_call>|</?invoke\b[^>]*>|</?parameter\b[^>]*>`)
)

// hasToolMarkup reports whether text contains any tool markup marker.
func hasToolMarkup(text string) bool {
	return markerIndex(text) >= 0
}

// parseToolMarkup removes tool markup from text and returns the remaining
// main text (trimmed) and the calls it held, deduplicated and numbered.
func parseToolMarkup(text string) (string, []ir.ToolCall) {
	var calls []ir.ToolCall

	main := invokeBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		if call, ok := parseInvoke(block); ok {
			calls = append(calls, call)
		}
		return ""
	})

	if envelope := parseEnvelopes(main); len(envelope) > 0 {
		calls = append(calls, envelope...)
		main = envelopeRe.ReplaceAllString(main, "")
	}

	main = strings.TrimSpace(danglingTagRe.ReplaceAllString(main, ""))
	return main, numberCalls(dedupeCalls(calls))
}

func parseInvoke(block string) (ir.ToolCall, bool) {
	var name string
	if m := invokeOpenRe.FindStringSubmatch(block); m != nil {
		if n := nameAttrRe.FindStringSubmatch(m[1]); n != nil {
			name = strings.TrimSpace(n[1])
		}
	}

	params := map[string]string{}
	for _, m := range parameterRe.FindAllStringSubmatch(block, -1) {
		if key := strings.TrimSpace(m[1]); key != "" {
			params[key] = strings.TrimSpace(m[2])
		}
	}

	args := "{}"
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err == nil {
			args = string(data)
		}
	} else {
		inner := invokeHeadRe.ReplaceAllString(block, "")
		inner = invokeTailRe.ReplaceAllString(inner, "")
		inner = strings.TrimSpace(toolCallTailRe.ReplaceAllString(inner, ""))
		if obj := gjson.Parse(inner); inner != "" && gjson.Valid(inner) && obj.IsObject() {
			if n := obj.Get("name"); name == "" && n.Type == gjson.String {
				name = strings.TrimSpace(n.Str)
			}
			if a := obj.Get("arguments"); a.IsObject() {
				args = compactJSON(a.Raw)
			} else {
				args = compactJSON(obj.Raw)
			}
		}
	}

	if name == "" {
		return ir.ToolCall{}, false
	}
	return ir.ToolCall{Name: name, Arguments: args}, true
}

func parseEnvelopes(text string) []ir.ToolCall {
	var calls []ir.ToolCall
	for _, m := range envelopeRe.FindAllStringSubmatch(text, -1) {
		payload := strings.TrimSpace(m[1])
		if payload == "" || !gjson.Valid(payload) {
			continue
		}
		doc := gjson.Parse(payload)
		entries := []gjson.Result{doc}
		if doc.IsArray() {
			entries = doc.Array()
		}
		for _, e := range entries {
			if !e.IsObject() {
				continue
			}
			name := strings.TrimSpace(e.Get("name").String())
			if e.Get("name").Type != gjson.String || name == "" {
				continue
			}
			args := "{}"
			if a := e.Get("arguments"); a.IsObject() {
				args = compactJSON(a.Raw)
			}
			calls = append(calls, ir.ToolCall{Name: name, Arguments: args})
		}
	}
	return calls
}

func compactJSON(raw string) string {
	return gjson.Get(raw, "@ugly").Raw
}

func dedupeCalls(calls []ir.ToolCall) []ir.ToolCall {
	seen := make(map[string]bool, len(calls))
	var out []ir.ToolCall
	for _, c := range calls {
		key := c.Name + "::" + c.Arguments
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func numberCalls(calls []ir.ToolCall) []ir.ToolCall {
	for i := range calls {
		calls[i].ID = toolCallIDPrefix + strconv.Itoa(i+1)
	}
	return calls
}

// =============================================================================
// STREAM
// =============================================================================

// toolMarkupTransformer passes content through until tool markup starts,
// then holds the rest of the choice and parses it at Flush. A trailing
// fragment that may begin a marker is held until the next delta decides it.
type toolMarkupTransformer struct {
	carry   string
	held    strings.Builder
	holding bool
}

func (t *toolMarkupTransformer) Transform(d stream.Delta) stream.Delta {
	out := stream.Delta{Reasoning: d.Reasoning, ToolCalls: d.ToolCalls}
	if t.holding {
		t.held.WriteString(d.Content)
		return out
	}

	input := t.carry + d.Content
	t.carry = ""
	if idx := markerIndex(input); idx >= 0 {
		out.Content = input[:idx]
		t.held.WriteString(input[idx:])
		t.holding = true
		return out
	}
	out.Content, t.carry = splitMarkerPrefix(input)
	return out
}

func (t *toolMarkupTransformer) Flush() stream.Delta {
	rest := t.carry + t.held.String()
	t.carry = ""
	t.held.Reset()
	t.holding = false

	if !hasToolMarkup(rest) {
		return stream.Delta{Content: rest}
	}
	main, calls := parseToolMarkup(rest)
	return stream.Delta{Content: main, ToolCalls: calls}
}

var _ stream.Transformer = (*toolMarkupTransformer)(nil)

// markerIndex returns the byte offset of the first tool marker in text, or -1.
func markerIndex(text string) int {
	lower := asciiLower(text)
	first := -1
	for _, m := range toolMarkers {
		if i := strings.Index(lower, m); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}

// splitMarkerPrefix splits off the longest suffix of text that is a proper
// prefix of some tool marker.
func splitMarkerPrefix(text string) (emit, held string) {
	lower := asciiLower(text)
	best := 0
	for _, m := range toolMarkers {
		maxLen := len(m) - 1
		if maxLen > len(lower) {
			maxLen = len(lower)
		}
		for n := maxLen; n > best; n-- {
			if strings.HasSuffix(lower, m[:n]) {
				best = n
				break
			}
		}
	}
	return text[:len(text)-best], text[len(text)-best:]
}

// asciiLower lowercases A-Z only, so byte offsets match the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
