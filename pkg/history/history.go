// pkg/history/history.go
package history

import (
	"sync"
	"time"
)

// Role identifies which side of an exchange an entry belongs to.
type Role string

const (
	// RoleObservation entries carry the rendered page context given to the model.
	RoleObservation Role = "observation"
	// RoleResponse entries carry the model's raw reply.
	RoleResponse Role = "response"
	// RoleMarker is the synthetic truncation marker.
	RoleMarker Role = "marker"
)

// TruncationMarker is the content of the synthetic entry inserted after the
// pinned first entry when older exchanges have been evicted.
const TruncationMarker = "<truncated />"

// Entry is one half of an exchange in the conversation log.
type Entry struct {
	Role    Role
	Content string
	Step    int
	At      time.Time
}

// Manager owns the bounded conversation log. The first entry (the task
// instruction) is never evicted; eviction replaces older exchanges with a
// single marker entry directly after it.
//
// The control loop is the only writer. The mutex exists so postmortem readers
// (final summaries, interactive inspection) can snapshot safely.
type Manager struct {
	mu        sync.Mutex
	entries   []Entry
	maxPairs  *int
	truncated bool
}

// New creates a history manager. maxPairs is the retention budget counted in
// exchange pairs (one observation + one response); nil disables truncation.
func New(maxPairs *int) *Manager {
	return &Manager{maxPairs: maxPairs}
}

// Append adds an entry to the end of the log. It never truncates; truncation is
// evaluated once per step via Truncate, after the step's entries are appended.
func (m *Manager) Append(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	m.entries = append(m.entries, e)
}

// Truncate applies the retention policy: entry 0 is always preserved, and the
// remainder (marker excluded) is capped at 2*maxPairs entries. When entries are
// evicted, exactly one marker entry sits immediately after entry 0, replacing
// any prior marker. A nil budget makes this a no-op.
func (m *Manager) Truncate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxPairs == nil || len(m.entries) == 0 {
		return
	}
	budget := 2 * (*m.maxPairs)

	body := m.body()
	if len(body) <= budget {
		if m.truncated {
			// Already truncated earlier in the run; keep the single marker.
			m.rebuild(body)
		}
		return
	}

	body = body[len(body)-budget:]
	m.truncated = true
	m.rebuild(body)
}

// body returns all entries except entry 0 and any marker.
func (m *Manager) body() []Entry {
	var body []Entry
	for i, e := range m.entries {
		if i == 0 || e.Role == RoleMarker {
			continue
		}
		body = append(body, e)
	}
	return body
}

// rebuild reassembles the log as [entry0, marker, body...].
func (m *Manager) rebuild(body []Entry) {
	rebuilt := make([]Entry, 0, len(body)+2)
	rebuilt = append(rebuilt, m.entries[0])
	rebuilt = append(rebuilt, Entry{
		Role:    RoleMarker,
		Content: TruncationMarker,
		Step:    m.entries[0].Step,
		At:      time.Now().UTC(),
	})
	rebuilt = append(rebuilt, body...)
	m.entries = rebuilt
}

// Entries returns a copy of the current log.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Len returns the number of entries currently held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Truncated reports whether any entries have been evicted during this run.
func (m *Manager) Truncated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.truncated
}

// Clear wipes the log for a full task restart.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.truncated = false
}
