// pkg/prompt/renderer_test.go
package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/glimpse-cli/pkg/history"
	"github.com/xkilldash9x/glimpse-cli/pkg/memory"
	"github.com/xkilldash9x/glimpse-cli/pkg/observe"
)

func testObservation(t *testing.T, elementCount int) *observe.PageObservation {
	t.Helper()
	dets := make([]observe.Detection, 0, elementCount)
	for i := 0; i < elementCount; i++ {
		dets = append(dets, observe.Detection{
			Kind:       "button",
			Box:        observe.Box{X: 10, Y: float64(20 * i), W: 40, H: 16},
			Confidence: 0.9,
		})
	}
	cap := observe.Capture{
		PNG:         []byte{0x89, 0x50, 0x4e, 0x47},
		Width:       2048,
		Height:      1536,
		DeviceScale: 2.0,
		Viewport: observe.Viewport{
			Width: 1024, Height: 768,
			ScrollY: 120, ScrollHeight: 4000, CanScrollDown: true,
		},
		Nav:   observe.Navigation{CanGoBack: true},
		URL:   "https://example.com/search",
		Title: "Search",
	}
	b := observe.NewBuilder(zap.NewNop(), 0.5, 8)
	obs, err := b.Build(1, cap, dets, nil)
	require.NoError(t, err)
	return obs
}

func TestRenderIsPure(t *testing.T) {
	r := NewRenderer(120)
	turn := Turn{
		Instruction: "find the pricing page",
		Observation: testObservation(t, 3),
		Memory:      []memory.Note{{Text: "logged in as demo", Step: 1, At: time.Unix(0, 0)}},
		PageTrail:   []PageVisit{{URL: "https://example.com", Title: "Home"}},
	}
	first := r.Render(turn)
	second := r.Render(turn)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.ImagePNG)
	assert.Positive(t, first.TokenEstimate)
}

func TestRenderSections(t *testing.T) {
	r := NewRenderer(120)
	got := r.Render(Turn{
		Instruction: "buy a ticket",
		FirstTurn:   true,
		Observation: testObservation(t, 2),
		Memory:      []memory.Note{{Text: "prefer aisle seat", Step: 2}},
		PageTrail:   []PageVisit{{URL: "https://example.com", Title: "Home"}},
		History: []history.Entry{
			{Role: history.RoleObservation, Content: "[page] https://example.com (Home) — 2 elements"},
			{Role: history.RoleMarker, Content: history.TruncationMarker},
			{Role: history.RoleResponse, Content: `<click id="1" />`},
		},
		ExecError: "element 9 not present",
		UserInput: "use the cheapest option",
	})

	for _, want := range []string{
		"<task>\nbuy a ticket\n</task>",
		"Current URL: https://example.com/search",
		"Can scroll down: true",
		"Can go back: true",
		"id: 0 [button]",
		"- [step 2] prefer aisle seat",
		"URL: https://example.com\nTitle: Home",
		"[observation] [page] https://example.com (Home) — 2 elements",
		history.TruncationMarker,
		"[response] <click id=\"1\" />",
		"element 9 not present",
		"use the cheapest option",
	} {
		assert.Contains(t, got.User, want)
	}
	assert.Contains(t, got.System, `<click id="3" />`)
}

func TestRenderElementCap(t *testing.T) {
	r := NewRenderer(5)
	got := r.Render(Turn{Instruction: "x", Observation: testObservation(t, 9)})
	assert.Contains(t, got.User, "id: 4 [button]")
	assert.NotContains(t, got.User, "id: 5 [button]")
	assert.Contains(t, got.User, "(... 4 more elements not shown)")
}

func TestRenderNoCap(t *testing.T) {
	r := NewRenderer(0)
	got := r.Render(Turn{Instruction: "x", Observation: testObservation(t, 9)})
	assert.Contains(t, got.User, "id: 8 [button]")
	assert.NotContains(t, got.User, "more elements not shown")
}

func TestRenderNudgeAsUserInput(t *testing.T) {
	r := NewRenderer(120)
	got := r.Render(Turn{Instruction: "x", Observation: testObservation(t, 1), UserInput: NudgeToken})
	assert.True(t, strings.HasSuffix(got.User, NudgeToken))
	assert.NotEmpty(t, got.ImagePNG)
}

func TestRenderOmitsEmptySections(t *testing.T) {
	r := NewRenderer(120)
	got := r.Render(Turn{Instruction: "x", Observation: testObservation(t, 1)})
	assert.NotContains(t, got.User, "<memory>")
	assert.NotContains(t, got.User, "<history>")
	assert.NotContains(t, got.User, "<conversation>")
	assert.NotContains(t, got.User, "<error>")
}

func TestStepDigest(t *testing.T) {
	obs := testObservation(t, 2)
	digest := StepDigest(obs, "go faster")
	assert.Contains(t, digest, "https://example.com/search")
	assert.Contains(t, digest, "2 elements")
	assert.Contains(t, digest, "[user] go faster")
	assert.NotContains(t, digest, "<conversation>")

	assert.Equal(t, "hello", StepDigest(nil, "hello"))
}

func TestCorrective(t *testing.T) {
	msg := Corrective("I will click the button now")
	assert.Contains(t, msg, "I will click the button now")
	assert.Contains(t, msg, "could not be parsed")
	assert.True(t, strings.Contains(msg, `<done result="..." />`))
}
