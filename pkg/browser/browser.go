// pkg/browser/browser.go

// Package browser drives a Chrome instance over the DevTools protocol. It
// exposes exactly the surface the agent loop needs: capture the current view
// and execute one grounded action against it.
package browser

import (
	"context"

	"github.com/xkilldash9x/glimpse-cli/pkg/action"
	"github.com/xkilldash9x/glimpse-cli/pkg/observe"
)

// ActionResult reports the outcome of executing one action.
type ActionResult struct {
	Success      bool
	ErrorMessage string
	NewURL       string
}

// Controller is the browser surface the agent loop depends on.
type Controller interface {
	// Capture takes a screenshot and collects page metrics in one pass.
	Capture(ctx context.Context) (observe.Capture, error)
	// Execute performs one grounded action. The observation supplies the
	// geometry actions with an element index were grounded against.
	Execute(ctx context.Context, p *action.Parsed, obs *observe.PageObservation) (ActionResult, error)
	// Navigate loads a URL directly, used for the run's start page.
	Navigate(ctx context.Context, url string) error
	Close() error
}
