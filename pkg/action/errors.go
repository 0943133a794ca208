// pkg/action/errors.go
package action

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failure classes of parsing and grounding.
type ErrorKind string

const (
	// KindUnparseable: the model's reply matched no recognized command form.
	// The step is retried once with a corrective follow-up prompt.
	KindUnparseable ErrorKind = "unparseable"
	// KindUnrecoverable: the corrective retry also failed; the step fails.
	KindUnrecoverable ErrorKind = "unrecoverable"
	// KindStaleReference: the action references an element index that does not
	// exist in the observation shown to the model. Forces a fresh observation.
	KindStaleReference ErrorKind = "stale_reference"
	// KindInfeasible: the action is well-formed but impossible against the
	// observed page state (e.g. scrolling past the bottom).
	KindInfeasible ErrorKind = "infeasible"
)

// Error is the typed failure returned by Parse and Ground.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("action %s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or "" if err is not an action error.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsStale reports whether err is a stale-reference grounding failure.
func IsStale(err error) bool { return KindOf(err) == KindStaleReference }

// IsUnparseable reports whether err is a parse failure eligible for one
// corrective retry.
func IsUnparseable(err error) bool { return KindOf(err) == KindUnparseable }

// IsUnrecoverable reports whether err is a parse failure that already consumed
// its corrective retry.
func IsUnrecoverable(err error) bool { return KindOf(err) == KindUnrecoverable }

// Unrecoverable marks a parse failure that survived the corrective retry. The
// step cannot proceed; the caller fails the run.
func Unrecoverable(err error) *Error {
	return &Error{Kind: KindUnrecoverable, Msg: err.Error()}
}

// IsInfeasible reports whether err is a feasibility grounding failure.
func IsInfeasible(err error) bool { return KindOf(err) == KindInfeasible }
