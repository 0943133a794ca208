// pkg/browser/session_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/glimpse-cli/internal/config"
	"github.com/xkilldash9x/glimpse-cli/pkg/action"
)

func testBrowserConfig() config.BrowserConfig {
	return config.BrowserConfig{
		Headless:          true,
		Width:             1024,
		Height:            768,
		DeviceScaleFactor: 2.0,
		ActionTimeout:     15 * time.Second,
		NavigationTimeout: 30 * time.Second,
		PostLoadWait:      500 * time.Millisecond,
	}
}

func TestExecutionTimeoutsByKind(t *testing.T) {
	s := &Session{cfg: testBrowserConfig()}

	assert.Equal(t, 15*time.Second, s.executionTimeout(&action.Parsed{Kind: action.KindClick}))
	assert.Equal(t, 30*time.Second, s.executionTimeout(&action.Parsed{Kind: action.KindNavigate}))
	assert.Equal(t, 30*time.Second, s.executionTimeout(&action.Parsed{Kind: action.KindBack}))
	assert.Equal(t, 17*time.Second, s.executionTimeout(&action.Parsed{
		Kind: action.KindWait, Wait: 2 * time.Second,
	}))
}

func TestElementPointRejectsMissingElement(t *testing.T) {
	s := &Session{cfg: testBrowserConfig()}

	_, _, err := s.elementPoint(0, nil)
	assert.ErrorContains(t, err, "no observation")
}

func TestExecutionContextIgnoresCallerCancellation(t *testing.T) {
	s := &Session{cfg: testBrowserConfig(), browserCtx: context.Background()}

	caller, abort := context.WithCancel(context.Background())
	abort()

	tctx, cancel := s.executionContext(s.cfg.ActionTimeout)
	defer cancel()

	// The dispatched action keeps running even though the caller aborted.
	assert.Error(t, caller.Err())
	assert.NoError(t, tctx.Err())
}

func TestActionContextFollowsCallerCancellation(t *testing.T) {
	s := &Session{cfg: testBrowserConfig(), browserCtx: context.Background()}

	caller, abort := context.WithCancel(context.Background())
	tctx, cancel := s.actionContext(caller, s.cfg.ActionTimeout)
	defer cancel()

	assert.NoError(t, tctx.Err())
	abort()
	select {
	case <-tctx.Done():
	case <-time.After(time.Second):
		t.Fatal("capture context did not follow caller cancellation")
	}
}

func TestScrollActionDefaultsToOnePage(t *testing.T) {
	s := &Session{cfg: testBrowserConfig()}
	assert.NotNil(t, s.scrollAction(&action.Parsed{Kind: action.KindScroll, Direction: action.ScrollDown}))
	assert.NotNil(t, s.scrollAction(&action.Parsed{Kind: action.KindScroll, Direction: action.ScrollUp, Pages: 2}))
}
