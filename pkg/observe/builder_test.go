// pkg/observe/builder_test.go
package observe

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCapture() Capture {
	return Capture{
		PNG:         []byte("png-bytes"),
		Width:       2048,
		Height:      1536,
		DeviceScale: 2.0,
		Viewport:    Viewport{Width: 1024, Height: 768, ScrollHeight: 3000, CanScrollDown: true},
		Nav:         Navigation{CanGoBack: true},
		URL:         "https://example.com",
		Title:       "Example",
	}
}

func testDetections() []Detection {
	return []Detection{
		{Box: Box{X: 500, Y: 10, W: 100, H: 40}, Kind: "button", Confidence: 0.9},
		{Box: Box{X: 10, Y: 10, W: 100, H: 40}, Kind: "link", Confidence: 0.8},
		{Box: Box{X: 10, Y: 200, W: 300, H: 60}, Kind: "input", Confidence: 0.95},
	}
}

func TestBuildAssignsDeterministicIndices(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)

	obs, err := b.Build(1, testCapture(), testDetections(), nil)
	require.NoError(t, err)
	require.Len(t, obs.Elements, 3)

	// Top-to-bottom, left-to-right by box origin.
	assert.Equal(t, "link", obs.Elements[0].Kind)
	assert.Equal(t, "button", obs.Elements[1].Kind)
	assert.Equal(t, "input", obs.Elements[2].Kind)
	for i, el := range obs.Elements {
		assert.Equal(t, i, el.Index)
	}
}

func TestBuildIsDeterministicUnderInputShuffle(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)

	base := testDetections()
	reference, err := b.Build(1, testCapture(), base, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for range 10 {
		shuffled := append([]Detection(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		obs, err := b.Build(1, testCapture(), shuffled, nil)
		require.NoError(t, err)

		diff := cmp.Diff(reference.Elements, obs.Elements,
			cmpopts.EquateApprox(0, 1e-9))
		assert.Empty(t, diff, "element order must not depend on input order")
	}
}

func TestBuildIndicesUnique(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)
	obs, err := b.Build(1, testCapture(), testDetections(), nil)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, el := range obs.Elements {
		assert.False(t, seen[el.Index], "duplicate index %d", el.Index)
		seen[el.Index] = true
	}
}

func TestBuildAttachesOverlappingText(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)

	texts := []Text{
		// Fully inside the button at (500,10).
		{Box: Box{X: 520, Y: 20, W: 60, H: 20}, Value: "Search", Confidence: 0.99},
		// Nowhere near any element.
		{Box: Box{X: 900, Y: 900, W: 50, H: 20}, Value: "Footer", Confidence: 0.9},
	}

	obs, err := b.Build(1, testCapture(), testDetections(), texts)
	require.NoError(t, err)

	button, ok := obs.Element(1)
	require.True(t, ok)
	assert.Equal(t, "button", button.Kind)
	assert.Equal(t, "Search", button.Label)

	// Both text fragments survive independently of labeling.
	require.Len(t, obs.Texts, 2)
	assert.Equal(t, "Footer", obs.Texts[1].Value)
}

func TestBuildIgnoresTextBelowOverlapThreshold(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)

	// Only a sliver of this text overlaps the link at (10,10,100,40).
	texts := []Text{
		{Box: Box{X: 105, Y: 10, W: 100, H: 40}, Value: "mostly outside", Confidence: 0.9},
	}

	obs, err := b.Build(1, testCapture(), testDetections(), texts)
	require.NoError(t, err)

	link, ok := obs.Element(0)
	require.True(t, ok)
	assert.Empty(t, link.Label)
}

func TestBuildRejectsViewportMismatch(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)

	cap := testCapture()
	cap.Width = 1280 // inconsistent with 1024 * 2.0

	_, err := b.Build(1, cap, testDetections(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrViewportMismatch)
}

func TestBuildToleratesSmallViewportDrift(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)

	cap := testCapture()
	cap.Width = 2052 // 4px drift at scale 2, inside the 8px tolerance

	_, err := b.Build(1, cap, testDetections(), nil)
	assert.NoError(t, err)
}

func TestElementLookup(t *testing.T) {
	b := NewBuilder(zap.NewNop(), 0.5, 8)
	obs, err := b.Build(3, testCapture(), testDetections(), nil)
	require.NoError(t, err)

	_, ok := obs.Element(2)
	assert.True(t, ok)
	_, ok = obs.Element(99)
	assert.False(t, ok)
	_, ok = obs.Element(-1)
	assert.False(t, ok)
}
