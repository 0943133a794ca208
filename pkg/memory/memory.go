// pkg/memory/memory.go

// Package memory holds the agent's long-lived notes. Notes are created by an
// explicit memorize command, survive history truncation and navigation, and are
// only removed on a full reset.
package memory

import (
	"sync"
	"time"
)

// Note is one free-text memory with the step that created it.
type Note struct {
	Text string
	Step int
	At   time.Time
}

// Store is an ordered, append-only note list. No upper bound is enforced:
// memory is agent-curated and assumed small relative to history.
type Store struct {
	mu    sync.Mutex
	notes []Note
}

// NewStore creates an empty memory store.
func NewStore() *Store {
	return &Store{}
}

// Add appends a note created at the given step.
func (s *Store) Add(text string, step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, Note{Text: text, Step: step, At: time.Now().UTC()})
}

// All returns the notes in creation order.
func (s *Store) All() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

// Len returns the number of stored notes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// Clear wipes the store for an explicit reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = nil
}
