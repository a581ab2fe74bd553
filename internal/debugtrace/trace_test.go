package debugtrace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obj(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

func TestBuild_IdenticalIsEmpty(t *testing.T) {
	v := obj(`{"model":"m","messages":[{"role":"user","content":"hi"}],"temperature":0.2,"nested":{"a":[1,2]}}`)
	assert.Empty(t, Build("s", v, obj(`{"model":"m","messages":[{"role":"user","content":"hi"}],"temperature":0.2,"nested":{"a":[1,2]}}`), LevelFull))
	assert.Empty(t, Build("s", v, v, LevelSummary))
}

func TestBuild_ScalarChange(t *testing.T) {
	entries := Build("capability_filter", obj(`{"a":1}`), obj(`{"a":2}`), LevelSummary)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "capability_filter", e.Stage)
	assert.Equal(t, ActionChanged, e.Action)
	assert.Equal(t, "a", e.Path)
	assert.JSONEq(t, `1`, string(e.Before))
	assert.JSONEq(t, `2`, string(e.After))
}

func TestBuild_AddedRemovedNested(t *testing.T) {
	entries := Build("s",
		obj(`{"reasoning":{"effort":"high"},"top_p":0.5}`),
		obj(`{"reasoning":{"effort":"high","summary":"auto"}}`),
		LevelSummary)

	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Stage: "s", Action: ActionAdded, Path: "reasoning.summary", After: json.RawMessage(`"auto"`)}, entries[0])
	assert.Equal(t, Entry{Stage: "s", Action: ActionRemoved, Path: "top_p", Before: json.RawMessage(`0.5`)}, entries[1])
}

func TestBuild_NullIsNotAbsent(t *testing.T) {
	entries := Build("s", obj(`{"a":null}`), obj(`{}`), LevelFull)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionRemoved, entries[0].Action)
	assert.Equal(t, "null", string(entries[0].Before))

	assert.Empty(t, Build("s", obj(`{"a":null}`), obj(`{"a":null}`), LevelFull))
}

func TestBuild_ArraysCompareWhole(t *testing.T) {
	entries := Build("s", obj(`{"stop":["a","b"]}`), obj(`{"stop":["b","a"]}`), LevelFull)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionChanged, entries[0].Action)
	assert.Equal(t, "stop", entries[0].Path)
}

func TestBuild_RedactedPaths(t *testing.T) {
	before := obj(`{"messages":[{"role":"user","content":"secret"}]}`)
	after := obj(`{"messages":[{"role":"user","content":"changed secret"}]}`)

	summary := Build("s", before, after, LevelSummary)
	require.Len(t, summary, 1)
	assert.Equal(t, "messages", summary[0].Path, "sensitive subtrees are not descended")
	assert.JSONEq(t, `"[redacted array length=1]"`, string(summary[0].Before))
	assert.NotContains(t, string(summary[0].After), "secret")

	full := Build("s", before, after, LevelFull)
	require.Len(t, full, 1)
	assert.Contains(t, string(full[0].After), "changed secret")

	// equal signature, different underlying object
	assert.Empty(t, Build("s", before, obj(`{"messages":[{"content":"secret","role":"user"}]}`), LevelSummary))
}

func TestBuild_RedactionMarkers(t *testing.T) {
	entries := Build("s",
		obj(`{}`),
		obj(`{"tools":[1,2,3],"prompt":{"x":1},"input":"text"}`),
		LevelSummary)
	got := map[string]string{}
	for _, e := range entries {
		got[e.Path] = string(e.After)
	}
	assert.Equal(t, map[string]string{
		"tools":  `"[redacted array length=3]"`,
		"prompt": `"[redacted object]"`,
		"input":  `"[redacted]"`,
	}, got)
}

func TestBuild_Moves(t *testing.T) {
	entries := Build("request_quirks",
		obj(`{"extensions":{"vendor":true},"max_tokens":512,"temperature":0.1}`),
		obj(`{"extensions":{"vendor":true,"max_completion_tokens":512},"temperature":0.1}`),
		LevelSummary)

	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, ActionMoved, e.Action)
	assert.Equal(t, "max_tokens", e.From)
	assert.Equal(t, "extensions.max_completion_tokens", e.To)
	assert.Equal(t, e.To, e.Path)
	assert.JSONEq(t, `512`, string(e.Before))
	assert.JSONEq(t, `512`, string(e.After))
}

func TestBuild_MovesArePositionalAndAppended(t *testing.T) {
	entries := Build("s",
		obj(`{"a":1,"b":1,"c":"keep","x":true}`),
		obj(`{"c":"changed","y":1,"z":1}`),
		LevelFull)

	var actions []Action
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []Action{ActionChanged, ActionRemoved, ActionMoved, ActionMoved}, actions)
	assert.Equal(t, "a", entries[2].From)
	assert.Equal(t, "y", entries[2].To)
	assert.Equal(t, "b", entries[3].From)
	assert.Equal(t, "z", entries[3].To)
}

func TestBuild_MissingInput(t *testing.T) {
	entries := Build("usage", nil, nil, LevelSummary)
	assert.Equal(t, []Entry{{Stage: "usage", Action: ActionNote, Path: RootPath, Note: "missing input"}}, entries)

	entries = Build("usage", nil, obj(`{"a":1}`), LevelSummary)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionAdded, entries[0].Action)
	assert.Equal(t, RootPath, entries[0].Path)
}

type sample struct {
	Model string            `json:"model"`
	Extra map[string]string `json:"extra,omitempty"`
}

func TestSnapshot(t *testing.T) {
	assert.Equal(t, map[string]any{"model": "m"}, Snapshot(sample{Model: "m"}))
	assert.Equal(t, map[string]any{"a": float64(1)}, Snapshot([]byte(`{"a":1}`)))
	assert.Nil(t, Snapshot([]byte(`{broken`)))
	assert.Nil(t, Snapshot(nil))
	assert.Equal(t, "[unserializable]", Snapshot(func() {}))
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" Full ")
	assert.True(t, ok)
	assert.Equal(t, LevelFull, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestRecorder(t *testing.T) {
	var nilRec *Recorder
	nilRec.Stage("s", 1, 2)
	nilRec.Note("s", RootPath, "x")
	assert.Nil(t, nilRec.Entries())
	assert.False(t, nilRec.Enabled())

	var seen []Action
	rec := NewRecorder(LevelSummary, func(e Entry) { seen = append(seen, e.Action) })
	rec.Stage("capability_filter", sample{Model: "a"}, sample{Model: "b"})
	rec.Note("usage", RootPath, "no usage reported")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "model", entries[0].Path)
	assert.Equal(t, "no usage reported", entries[1].Note)
	assert.Equal(t, []Action{ActionChanged, ActionNote}, seen)
	assert.Equal(t, LevelSummary, rec.Level())
}
