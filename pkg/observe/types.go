// pkg/observe/types.go
package observe

import (
	"time"
)

// Box is an axis-aligned bounding box in screenshot pixel coordinates (xywh).
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 { return b.X + b.W/2 }

// CenterY returns the vertical center of the box.
func (b Box) CenterY() float64 { return b.Y + b.H/2 }

// Area returns the box area in square pixels.
func (b Box) Area() float64 { return b.W * b.H }

// Intersection returns the overlapping area between two boxes.
func (b Box) Intersection(o Box) float64 {
	left := max(b.X, o.X)
	top := max(b.Y, o.Y)
	right := min(b.X+b.W, o.X+o.W)
	bottom := min(b.Y+b.H, o.Y+o.H)
	if right <= left || bottom <= top {
		return 0
	}
	return (right - left) * (bottom - top)
}

// Detection is one interactive region reported by the vision service.
type Detection struct {
	Box        Box     `json:"box"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// Text is one recognized text fragment reported by the OCR engine.
type Text struct {
	Box        Box     `json:"box"`
	Value      string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DetectedElement is a Detection after indexing and label attachment.
// Index is the only handle the reasoning model may use to refer to the element.
type DetectedElement struct {
	Index      int     `json:"index"`
	Kind       string  `json:"kind"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}

// Viewport describes the visible portion of the page in CSS pixels.
type Viewport struct {
	Width         int  `json:"width"`
	Height        int  `json:"height"`
	ScrollY       int  `json:"scroll_y"`
	ScrollHeight  int  `json:"scroll_height"`
	CanScrollDown bool `json:"can_scroll_down"`
}

// Navigation describes the browser history affordances at capture time.
type Navigation struct {
	CanGoBack    bool `json:"can_go_back"`
	CanGoForward bool `json:"can_go_forward"`
}

// Capture is the raw browser-side input to the Observation Builder:
// a screenshot plus the page metadata reported alongside it.
type Capture struct {
	PNG         []byte
	Width       int // screenshot pixel width
	Height      int // screenshot pixel height
	DeviceScale float64
	Viewport    Viewport
	Nav         Navigation
	URL         string
	Title       string
}

// PageObservation is an immutable snapshot of one observed page state.
// It is created fresh every step and never mutated; element indices are only
// meaningful against the observation instance that assigned them.
type PageObservation struct {
	ID          string
	Step        int
	Screenshot  []byte // annotated PNG shown to the model
	ScreenshotW int
	ScreenshotH int
	Elements    []DetectedElement
	Texts       []Text
	Viewport    Viewport
	Nav         Navigation
	URL         string
	Title       string
	CapturedAt  time.Time
}

// Element looks up a detected element by its per-step index.
func (o *PageObservation) Element(index int) (DetectedElement, bool) {
	if index < 0 || index >= len(o.Elements) {
		return DetectedElement{}, false
	}
	// Indices are assigned positionally by the builder.
	return o.Elements[index], true
}
