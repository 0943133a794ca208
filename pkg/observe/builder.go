// pkg/observe/builder.go
package observe

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrViewportMismatch signals a stale or mismatched capture: the screenshot
// dimensions disagree with the viewport metadata reported by the browser.
// The step must be retried with a fresh capture.
var ErrViewportMismatch = errors.New("screenshot and viewport dimensions disagree")

// Builder merges a capture with vision output into a PageObservation.
type Builder struct {
	logger           *zap.Logger
	overlapThreshold float64
	tolerancePx      int
}

// NewBuilder creates an observation builder. overlapThreshold is the minimum
// fraction of a text fragment's area that must fall inside an element's box for
// the text to be attached as that element's label.
func NewBuilder(logger *zap.Logger, overlapThreshold float64, tolerancePx int) *Builder {
	return &Builder{
		logger:           logger.Named("observe"),
		overlapThreshold: overlapThreshold,
		tolerancePx:      tolerancePx,
	}
}

// Build validates the capture, assigns deterministic element indices, and
// attaches overlapping OCR text as element labels. Both the element and text
// lists are retained independently.
func (b *Builder) Build(step int, cap Capture, detections []Detection, texts []Text) (*PageObservation, error) {
	if err := b.checkViewport(cap); err != nil {
		return nil, err
	}

	elements := indexElements(detections)
	attachLabels(elements, texts, b.overlapThreshold)

	obs := &PageObservation{
		ID:          uuid.NewString(),
		Step:        step,
		Screenshot:  cap.PNG,
		ScreenshotW: cap.Width,
		ScreenshotH: cap.Height,
		Elements:    elements,
		Texts:       append([]Text(nil), texts...),
		Viewport:    cap.Viewport,
		Nav:         cap.Nav,
		URL:         cap.URL,
		Title:       cap.Title,
		CapturedAt:  time.Now().UTC(),
	}

	b.logger.Debug("Built page observation",
		zap.String("obs_id", obs.ID),
		zap.Int("step", step),
		zap.String("url", obs.URL),
		zap.Int("elements", len(obs.Elements)),
		zap.Int("texts", len(obs.Texts)),
	)
	return obs, nil
}

// checkViewport compares the screenshot's pixel dimensions against the
// viewport metadata scaled by the device scale factor.
func (b *Builder) checkViewport(cap Capture) error {
	scale := cap.DeviceScale
	if scale <= 0 {
		scale = 1
	}
	expectedW := float64(cap.Viewport.Width) * scale
	expectedH := float64(cap.Viewport.Height) * scale

	tol := float64(b.tolerancePx) * scale
	if math.Abs(float64(cap.Width)-expectedW) > tol || math.Abs(float64(cap.Height)-expectedH) > tol {
		return fmt.Errorf("%w: screenshot %dx%d, viewport %dx%d at scale %.2f",
			ErrViewportMismatch, cap.Width, cap.Height, cap.Viewport.Width, cap.Viewport.Height, scale)
	}
	return nil
}

// indexElements sorts detections top-to-bottom, left-to-right by box origin and
// assigns positional indices. The sort is stable over an explicitly ordered copy
// so identical inputs always produce identical indices.
func indexElements(detections []Detection) []DetectedElement {
	sorted := append([]Detection(nil), detections...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y != sorted[j].Box.Y {
			return sorted[i].Box.Y < sorted[j].Box.Y
		}
		if sorted[i].Box.X != sorted[j].Box.X {
			return sorted[i].Box.X < sorted[j].Box.X
		}
		// Degenerate case: identical origins. Order by size, then kind, so the
		// result does not depend on input order.
		if sorted[i].Box.Area() != sorted[j].Box.Area() {
			return sorted[i].Box.Area() < sorted[j].Box.Area()
		}
		return sorted[i].Kind < sorted[j].Kind
	})

	elements := make([]DetectedElement, len(sorted))
	for i, d := range sorted {
		elements[i] = DetectedElement{
			Index:      i,
			Kind:       d.Kind,
			Box:        d.Box,
			Confidence: d.Confidence,
		}
	}
	return elements
}

// attachLabels assigns each text fragment to the element it overlaps most,
// provided the overlap covers at least threshold of the text's own area.
// Fragments with no qualifying element stay label-free; they remain available
// in the observation's independent text list either way.
func attachLabels(elements []DetectedElement, texts []Text, threshold float64) {
	for _, txt := range texts {
		area := txt.Box.Area()
		if area <= 0 {
			continue
		}
		best := -1
		bestOverlap := 0.0
		for i := range elements {
			overlap := elements[i].Box.Intersection(txt.Box) / area
			if overlap > bestOverlap {
				bestOverlap = overlap
				best = i
			}
		}
		if best >= 0 && bestOverlap >= threshold {
			if elements[best].Label == "" {
				elements[best].Label = txt.Value
			} else {
				elements[best].Label += " " + txt.Value
			}
		}
	}
}
