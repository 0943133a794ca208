// pkg/history/history_test.go
package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

// appendPair appends one observation/response exchange for the given step.
func appendPair(m *Manager, step int) {
	m.Append(Entry{Role: RoleObservation, Content: fmt.Sprintf("obs-%d", step), Step: step})
	m.Append(Entry{Role: RoleResponse, Content: fmt.Sprintf("resp-%d", step), Step: step})
}

func TestTruncateKeepsFirstEntryAndBudget(t *testing.T) {
	const n = 3
	m := New(intPtr(n))

	m.Append(Entry{Role: RoleObservation, Content: "task instruction", Step: 0})
	for step := 1; step <= 10; step++ {
		appendPair(m, step)
		m.Truncate()
	}

	entries := m.Entries()
	require.True(t, m.Truncated())

	// entry 0 unchanged
	assert.Equal(t, "task instruction", entries[0].Content)
	// exactly one marker, immediately after entry 0
	assert.Equal(t, RoleMarker, entries[1].Role)
	assert.Equal(t, TruncationMarker, entries[1].Content)
	markers := 0
	for _, e := range entries {
		if e.Role == RoleMarker {
			markers++
		}
	}
	assert.Equal(t, 1, markers)

	// body length excluding entry 0 and marker is exactly 2N
	body := entries[2:]
	assert.Len(t, body, 2*n)
	// and it is the newest 2N entries
	assert.Equal(t, "obs-8", body[0].Content)
	assert.Equal(t, "resp-10", body[len(body)-1].Content)
}

func TestTruncateNoOpUnderBudget(t *testing.T) {
	m := New(intPtr(4))
	m.Append(Entry{Role: RoleObservation, Content: "task", Step: 0})
	appendPair(m, 1)
	appendPair(m, 2)
	m.Truncate()

	assert.False(t, m.Truncated())
	assert.Len(t, m.Entries(), 5)
	for _, e := range m.Entries() {
		assert.NotEqual(t, RoleMarker, e.Role)
	}
}

func TestNilBudgetDisablesTruncation(t *testing.T) {
	m := New(nil)
	m.Append(Entry{Role: RoleObservation, Content: "task", Step: 0})
	for step := 1; step <= 50; step++ {
		appendPair(m, step)
		m.Truncate()
	}

	assert.False(t, m.Truncated())
	assert.Equal(t, 1+50*2, m.Len())
}

func TestTruncateScenarioThreeStepsBudgetTwo(t *testing.T) {
	// max_history_size = 2; after 3 steps: entry 0, marker, then the last 2 pairs.
	m := New(intPtr(2))
	m.Append(Entry{Role: RoleObservation, Content: "task", Step: 0})
	for step := 1; step <= 3; step++ {
		appendPair(m, step)
		m.Truncate()
	}

	entries := m.Entries()
	require.Len(t, entries, 6)
	assert.Equal(t, "task", entries[0].Content)
	assert.Equal(t, RoleMarker, entries[1].Role)
	assert.Equal(t, "obs-2", entries[2].Content)
	assert.Equal(t, "resp-2", entries[3].Content)
	assert.Equal(t, "obs-3", entries[4].Content)
	assert.Equal(t, "resp-3", entries[5].Content)
}

func TestRepeatedTruncationKeepsSingleMarker(t *testing.T) {
	m := New(intPtr(1))
	m.Append(Entry{Role: RoleObservation, Content: "task", Step: 0})
	for step := 1; step <= 6; step++ {
		appendPair(m, step)
		m.Truncate()
	}

	markers := 0
	for _, e := range m.Entries() {
		if e.Role == RoleMarker {
			markers++
		}
	}
	assert.Equal(t, 1, markers)
}

func TestClearResetsEverything(t *testing.T) {
	m := New(intPtr(1))
	m.Append(Entry{Role: RoleObservation, Content: "task", Step: 0})
	for step := 1; step <= 4; step++ {
		appendPair(m, step)
		m.Truncate()
	}
	require.True(t, m.Truncated())

	m.Clear()
	assert.Zero(t, m.Len())
	assert.False(t, m.Truncated())
}

func TestEntriesReturnsCopy(t *testing.T) {
	m := New(nil)
	m.Append(Entry{Role: RoleObservation, Content: "task", Step: 0})

	snapshot := m.Entries()
	snapshot[0].Content = "mutated"

	assert.Equal(t, "task", m.Entries()[0].Content)
}
