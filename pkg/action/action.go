// pkg/action/action.go

// Package action turns the reasoning model's free-text reply into a typed
// command and validates it against the observation the model was shown.
package action

import (
	"time"
)

// Kind is the tag of the Action variant.
type Kind string

const (
	KindClick    Kind = "click"
	KindType     Kind = "type"
	KindScroll   Kind = "scroll"
	KindNavigate Kind = "navigate"
	KindBack     Kind = "back"
	KindWait     Kind = "wait"
	KindThinking Kind = "thinking"
	KindFinish   Kind = "finish"
)

// ScrollDirection is the direction of a scroll action.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// Parsed is one decoded command. Exactly one primary action is present per
// reply; memorize notes and a continuation flag may accompany it.
type Parsed struct {
	ID   string
	Kind Kind

	// ElementIndex is set for click and type. It refers to an index in the
	// PageObservation that produced this step's prompt, never to coordinates.
	ElementIndex int
	Text         string
	Enter        bool
	Direction    ScrollDirection
	Pages        int
	URL          string
	Wait         time.Duration
	Message      string // thinking message, may accompany any action
	Result       string // finish summary

	// Memorize holds zero or more notes extracted alongside the primary action.
	Memorize []string
	// Continue is set when the model appended a continuation tag, asking to act
	// again after seeing the result without new user input.
	Continue bool

	// ObservationID records which observation the action was grounded against.
	ObservationID string
}

// RequiresBrowser reports whether the action reaches the browser controller.
// Thinking and finish are handled entirely inside the loop; memorize notes are
// routed to the memory store before the primary action executes.
func (p *Parsed) RequiresBrowser() bool {
	switch p.Kind {
	case KindThinking, KindFinish:
		return false
	default:
		return true
	}
}

// Terminal reports whether the action ends the run.
func (p *Parsed) Terminal() bool { return p.Kind == KindFinish }
