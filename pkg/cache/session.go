// Package cache holds results of completed requests keyed by fingerprint.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/formwork/pkg/models"
)

// Entry is a stored result. Entries are replaced, never mutated.
type Entry struct {
	Result   models.Result
	StoredAt time.Time
}

// Cache is the store the engine consults before calling a provider.
type Cache interface {
	// Get returns a copy of the entry for key with Result.FromCache set and
	// Result.Tokens zeroed.
	Get(key string) (Entry, bool)
	// Set stores result under key, replacing any previous entry.
	Set(key string, result models.Result)
	// Clear removes every entry.
	Clear()
	Stats() models.CacheStats
}

// Session is an in-memory Cache that lives as long as the process. It has no
// size bound and no expiry. Concurrent identical requests may both miss and
// both Set; the last Set wins.
type Session struct {
	mu      sync.RWMutex
	entries map[string]Entry
	hits    atomic.Int64
	misses  atomic.Int64
	now     func() time.Time
}

// NewSession creates an empty session cache.
func NewSession() *Session {
	return &Session{entries: make(map[string]Entry), now: time.Now}
}

func (s *Session) Get(key string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		s.misses.Add(1)
		return Entry{}, false
	}
	s.hits.Add(1)

	e.Result.Data = copyValue(e.Result.Data)
	e.Result.FromCache = true
	e.Result.Tokens = 0
	return e, true
}

func (s *Session) Set(key string, result models.Result) {
	result.Data = copyValue(result.Data)
	e := Entry{Result: result, StoredAt: s.now().UTC()}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
}

// Stats returns the entry count and hit/miss counters. Clear does not reset
// the counters.
func (s *Session) Stats() models.CacheStats {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	return models.CacheStats{
		Entries: int64(n),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}
}

// Len returns the number of stored entries.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var defaultSession = NewSession()

// Default returns the process-wide session cache.
func Default() *Session { return defaultSession }

// ClearDefault empties the process-wide session cache.
func ClearDefault() { defaultSession.Clear() }

// copyValue deep-copies the generic JSON values the engine stores so callers
// cannot mutate cached results through a returned map or slice.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
