// pkg/memory/memory_test.go
package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPreservesOrder(t *testing.T) {
	s := NewStore()
	s.Add("first", 1)
	s.Add("second", 3)
	s.Add("third", 3)

	notes := s.All()
	require.Len(t, notes, 3)
	assert.Equal(t, "first", notes[0].Text)
	assert.Equal(t, 1, notes[0].Step)
	assert.Equal(t, "second", notes[1].Text)
	assert.Equal(t, "third", notes[2].Text)
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Add("keep me", 1)

	notes := s.All()
	notes[0].Text = "mutated"

	assert.Equal(t, "keep me", s.All()[0].Text)
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Add("a", 1)
	s.Add("b", 2)
	require.Equal(t, 2, s.Len())

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.All())
}
