package debugtrace

import "sync"

// Recorder collects trace entries for one request across stages.
// A nil *Recorder is valid and records nothing, so callers never branch on
// whether tracing is enabled.
type Recorder struct {
	mu      sync.Mutex
	level   Level
	entries []Entry
	onEntry func(Entry)
}

// NewRecorder creates a recorder at the given level. onEntry, if set, is
// called for every recorded entry (metrics).
func NewRecorder(level Level, onEntry func(Entry)) *Recorder {
	return &Recorder{level: level, onEntry: onEntry}
}

// Level returns the recorder's level.
func (r *Recorder) Level() Level {
	if r == nil {
		return ""
	}
	return r.level
}

// Enabled reports whether entries are being recorded.
func (r *Recorder) Enabled() bool { return r != nil }

// Stage snapshots before and after and records their diff.
func (r *Recorder) Stage(stage string, before, after any) {
	if r == nil {
		return
	}
	r.add(Build(stage, Snapshot(before), Snapshot(after), r.level))
}

// Note records a free-form note for a stage.
func (r *Recorder) Note(stage, path, note string) {
	if r == nil {
		return
	}
	r.add([]Entry{{Stage: stage, Action: ActionNote, Path: path, Note: note}})
}

func (r *Recorder) add(entries []Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, entries...)
	r.mu.Unlock()
	if r.onEntry != nil {
		for _, e := range entries {
			r.onEntry(e)
		}
	}
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}
