// pkg/agent/gate_test.go
package agent

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/glimpse-cli/pkg/action"
)

func TestAutoApproveGate(t *testing.T) {
	d, err := AutoApproveGate{}.Confirm(context.Background(), &action.Parsed{Kind: action.KindClick}, "")
	require.NoError(t, err)
	assert.True(t, d.Approve)
	assert.False(t, d.Abort)
}

func TestConsoleGateApprove(t *testing.T) {
	var out bytes.Buffer
	g := &ConsoleGate{In: strings.NewReader("y\n"), Out: &out}

	d, err := g.Confirm(context.Background(), &action.Parsed{Kind: action.KindClick, ElementIndex: 4}, "")
	require.NoError(t, err)
	assert.True(t, d.Approve)
	assert.Contains(t, out.String(), "click element 4")
}

func TestConsoleGateReject(t *testing.T) {
	var out bytes.Buffer
	g := &ConsoleGate{In: strings.NewReader("n\n"), Out: &out}

	d, err := g.Confirm(context.Background(), &action.Parsed{Kind: action.KindBack}, "")
	require.NoError(t, err)
	assert.False(t, d.Approve)
	assert.False(t, d.Abort)
}

func TestConsoleGateAbort(t *testing.T) {
	g := &ConsoleGate{In: strings.NewReader("a\n"), Out: &bytes.Buffer{}}

	d, err := g.Confirm(context.Background(), &action.Parsed{Kind: action.KindNavigate, URL: "https://x"}, "")
	require.NoError(t, err)
	assert.True(t, d.Abort)
}

func TestConsoleGateEditReplacesAction(t *testing.T) {
	var out bytes.Buffer
	g := &ConsoleGate{In: strings.NewReader("e\n<click id=\"7\" />\n"), Out: &out}

	d, err := g.Confirm(context.Background(), &action.Parsed{Kind: action.KindClick, ElementIndex: 2}, "")
	require.NoError(t, err)
	assert.True(t, d.Approve)
	require.NotNil(t, d.Edited)
	assert.Equal(t, action.KindClick, d.Edited.Kind)
	assert.Equal(t, 7, d.Edited.ElementIndex)
}

func TestConsoleGateEOFAborts(t *testing.T) {
	g := &ConsoleGate{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	d, err := g.Confirm(context.Background(), &action.Parsed{Kind: action.KindWait}, "")
	require.NoError(t, err)
	assert.True(t, d.Abort)
}
