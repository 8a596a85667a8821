// Package dedup records dump filenames that have already been handed to the
// pull pipeline. Both detection paths consult the same set, so a filename can
// enter the task queue at most once per process lifetime. Entries are never
// removed, even after a terminal pull failure, which keeps a permanently
// broken file from being re-queued in a loop.
package dedup

import "sync"

// Set is a mutex-guarded, append-only set of filenames.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add inserts name and reports whether it was absent. The check and the
// insert happen under one lock, so when two producers race on the same
// filename exactly one of them sees true.
func (s *Set) Add(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[name]; ok {
		return false
	}
	s.seen[name] = struct{}{}
	return true
}

// Contains reports whether name has been recorded.
func (s *Set) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[name]
	return ok
}

// Len returns the number of recorded filenames.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
