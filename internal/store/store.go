// Package store keeps debug traces so they can be fetched after a request.
//
// DESIGN: Traces are keyed by request id and expire after a TTL. Each trace
// holds at most maxEntries entries; further entries are dropped and the trace
// is marked truncated so a runaway diff cannot grow memory without bound.
//
// Currently only MemoryStore is implemented. For multi-instance deployments,
// implement TraceStore with Redis or similar.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/compresr/dialect-gateway/internal/debugtrace"
)

// Defaults used when the constructor gets zero values.
const (
	DefaultTTL             = 15 * time.Minute
	DefaultMaxEntries      = 500
	DefaultCleanupInterval = time.Minute
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("trace store closed")

// Meta describes the request a trace belongs to.
type Meta struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Level    string `json:"level,omitempty"`
}

// Trace is the stored trace of one request.
type Trace struct {
	ID        string             `json:"id"`
	Meta      Meta               `json:"meta"`
	CreatedAt time.Time          `json:"created_at"`
	Entries   []debugtrace.Entry `json:"entries"`
	Truncated bool               `json:"truncated,omitempty"`
}

// TraceStore defines the interface for debug trace storage.
type TraceStore interface {
	// Append adds entries to the trace for id, creating it when needed.
	Append(id string, meta Meta, entries ...debugtrace.Entry) error

	// Get returns a copy of the trace if it exists and hasn't expired.
	Get(id string) (*Trace, bool)

	// Delete removes a trace.
	Delete(id string) error

	// Close cleans up resources.
	Close() error
}

// MemoryStore is an in-memory TraceStore with TTL expiry.
type MemoryStore struct {
	data       map[string]entry
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	stopChan   chan struct{}
	stopped    bool
}

type entry struct {
	trace     *Trace
	expiresAt time.Time
}

// NewMemoryStore creates a store; zero arguments select the defaults.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return NewMemoryStoreWithCleanup(ttl, maxEntries, DefaultCleanupInterval)
}

// NewMemoryStoreWithCleanup creates a store with a custom cleanup interval.
func NewMemoryStoreWithCleanup(ttl time.Duration, maxEntries int, interval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	s := &MemoryStore{
		data:       make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		stopChan:   make(chan struct{}),
	}

	go s.cleanup(interval)

	return s
}

// Append adds entries to the trace for id. The TTL restarts on every write.
func (s *MemoryStore) Append(id string, meta Meta, entries ...debugtrace.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrClosed
	}

	now := time.Now()
	e, exists := s.data[id]
	if !exists || now.After(e.expiresAt) {
		e = entry{trace: &Trace{ID: id, Meta: meta, CreatedAt: now}}
	}

	room := s.maxEntries - len(e.trace.Entries)
	if room < len(entries) {
		e.trace.Truncated = true
		if room < 0 {
			room = 0
		}
		entries = entries[:room]
	}
	e.trace.Entries = append(e.trace.Entries, entries...)
	e.expiresAt = now.Add(s.ttl)
	s.data[id] = e
	return nil
}

// Get retrieves a trace if it exists and hasn't expired.
func (s *MemoryStore) Get(id string) (*Trace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[id]
	if !exists {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		return nil, false
	}

	t := *e.trace
	t.Entries = append([]debugtrace.Entry(nil), e.trace.Entries...)
	return &t, true
}

// Delete removes a trace.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

// Len returns the number of stored traces, expired ones included until the
// next cleanup.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close stops the cleanup goroutine and clears data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.data = nil
	}
	return nil
}

// cleanup periodically removes expired traces.
func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.evictExpired(time.Now())
		}
	}
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	for id, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, id)
		}
	}
}

// Ensure MemoryStore implements TraceStore
var _ TraceStore = (*MemoryStore)(nil)
