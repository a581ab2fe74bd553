// Package debugtrace diffs pipeline stage snapshots for developer inspection.
//
// DESIGN: Tracing is an optional side channel. Each stage hands over a
// before and an after snapshot of the same logical payload; Build walks them
// by path and reports what was added, removed, changed or moved. Nothing here
// feeds back into the request, so a tracing bug can never corrupt the wire
// format.
//
// Sensitive subtrees (messages, content, prompts, tools, media) are compared
// by signature only and never descended into. At summary level their values
// are replaced by presence markers; full level shows raw values.
//
// FLOW:
//  1. Snapshot() turns Go values into generic JSON values
//  2. diff() walks both sides, objects key by key, arrays as whole values
//  3. markMoves() pairs removed/added entries with equal values
package debugtrace

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Action is the kind of change an entry describes.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
	ActionChanged Action = "changed"
	ActionMoved   Action = "moved"
	ActionNote    Action = "note"
)

// Level controls how much of each value is shown.
type Level string

const (
	LevelSummary Level = "summary"
	LevelFull    Level = "full"
)

// ParseLevel returns the level for s and whether s names one.
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelSummary:
		return LevelSummary, true
	case LevelFull:
		return LevelFull, true
	}
	return "", false
}

// Entry is one observed change. Before and After hold JSON so that an
// explicit null stays distinguishable from an absent side.
type Entry struct {
	Stage  string          `json:"stage"`
	Action Action          `json:"action"`
	Path   string          `json:"path"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
	Note   string          `json:"note,omitempty"`
}

// redactedParts are path segments whose subtree is never shown or descended.
var redactedParts = map[string]bool{
	"messages": true,
	"message":  true,
	"content":  true,
	"input":    true,
	"prompt":   true,
	"text":     true,
	"audio":    true,
	"image":    true,
	"video":    true,
	"tools":    true,
	"tool":     true,
}

// RootPath is the path of the whole payload.
const RootPath = "$"

// slot is one side of a comparison; ok is false when the side is absent.
type slot struct {
	v  any
	ok bool
}

// record is an entry under construction, keeping raw signatures for move
// detection independent of redaction.
type record struct {
	entry     Entry
	beforeSig string
	afterSig  string
}

// Build diffs before and after. A nil argument means that side is absent;
// nulls nested inside objects are values like any other.
func Build(stage string, before, after any, level Level) []Entry {
	return build(stage, slot{v: before, ok: before != nil}, slot{v: after, ok: after != nil}, level)
}

func build(stage string, before, after slot, level Level) []Entry {
	if !before.ok && !after.ok {
		return []Entry{{Stage: stage, Action: ActionNote, Path: RootPath, Note: "missing input"}}
	}

	var recs []record
	diff(before, after, nil, level, &recs)
	recs = markMoves(recs)

	entries := make([]Entry, len(recs))
	for i, r := range recs {
		r.entry.Stage = stage
		entries[i] = r.entry
	}
	return entries
}

func diff(before, after slot, path []string, level Level, out *[]record) {
	switch {
	case !before.ok && !after.ok:
		return
	case !before.ok:
		*out = append(*out, record{
			entry:    Entry{Action: ActionAdded, Path: pathString(path), After: show(path, after.v, level)},
			afterSig: signature(after.v),
		})
		return
	case !after.ok:
		*out = append(*out, record{
			entry:     Entry{Action: ActionRemoved, Path: pathString(path), Before: show(path, before.v, level)},
			beforeSig: signature(before.v),
		})
		return
	}

	bObj, bIsObj := before.v.(map[string]any)
	aObj, aIsObj := after.v.(map[string]any)
	if bIsObj && aIsObj && !sensitive(path) {
		for _, key := range unionKeys(bObj, aObj) {
			bv, bok := bObj[key]
			av, aok := aObj[key]
			diff(slot{bv, bok}, slot{av, aok}, appendPath(path, key), level, out)
		}
		return
	}

	// sensitive subtrees, arrays and scalars all compare as whole values
	bs, as := signature(before.v), signature(after.v)
	if bs == as {
		return
	}
	*out = append(*out, record{
		entry: Entry{
			Action: ActionChanged,
			Path:   pathString(path),
			Before: show(path, before.v, level),
			After:  show(path, after.v, level),
		},
		beforeSig: bs,
		afterSig:  as,
	})
}

// markMoves pairs removed and added entries that carry the same value.
// Pairing is positional within each signature group, in the order entries
// were produced. With duplicate values the pairing may not match the true
// relocation; this only affects debug output.
func markMoves(recs []record) []record {
	removed := map[string][]int{}
	added := map[string][]int{}
	var order []string
	for i, r := range recs {
		switch r.entry.Action {
		case ActionRemoved:
			if _, seen := removed[r.beforeSig]; !seen {
				order = append(order, r.beforeSig)
			}
			removed[r.beforeSig] = append(removed[r.beforeSig], i)
		case ActionAdded:
			added[r.afterSig] = append(added[r.afterSig], i)
		}
	}

	consumed := make(map[int]bool)
	var moved []record
	for _, sig := range order {
		from, to := removed[sig], added[sig]
		n := min(len(from), len(to))
		for i := 0; i < n; i++ {
			src, dst := recs[from[i]], recs[to[i]]
			consumed[from[i]], consumed[to[i]] = true, true
			moved = append(moved, record{
				entry: Entry{
					Action: ActionMoved,
					Path:   dst.entry.Path,
					From:   src.entry.Path,
					To:     dst.entry.Path,
					Before: src.entry.Before,
					After:  dst.entry.After,
				},
				beforeSig: src.beforeSig,
				afterSig:  dst.afterSig,
			})
		}
	}
	if len(moved) == 0 {
		return recs
	}

	out := make([]record, 0, len(recs)-len(consumed)+len(moved))
	for i, r := range recs {
		if !consumed[i] {
			out = append(out, r)
		}
	}
	return append(out, moved...)
}

// =============================================================================
// VALUES
// =============================================================================

// Snapshot converts v into generic JSON values (maps, slices, strings,
// float64, bool, nil) so structs and decoded payloads diff alike. Raw JSON
// ([]byte or json.RawMessage) is parsed. Unencodable values become a
// placeholder string.
func Snapshot(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return parseJSON(t)
	case []byte:
		return parseJSON(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "[unserializable]"
	}
	return parseJSON(data)
}

func parseJSON(data []byte) any {
	if !gjson.ValidBytes(data) {
		return nil
	}
	return gjson.ParseBytes(data).Value()
}

// signature is a stable, key-sorted encoding of v.
func signature(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[unserializable]"
	}
	return string(data)
}

func show(path []string, v any, level Level) json.RawMessage {
	if level != LevelFull && sensitive(path) {
		v = redact(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal("[unserializable]")
	}
	return data
}

func redact(v any) string {
	switch t := v.(type) {
	case []any:
		return fmt.Sprintf("[redacted array length=%d]", len(t))
	case map[string]any:
		return "[redacted object]"
	default:
		return "[redacted]"
	}
}

func sensitive(path []string) bool {
	for _, p := range path {
		if redactedParts[p] {
			return true
		}
	}
	return false
}

func pathString(path []string) string {
	if len(path) == 0 {
		return RootPath
	}
	return strings.Join(path, ".")
}

func appendPath(path []string, key string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, key)
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
