// pkg/browser/session.go
package browser

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/glimpse-cli/internal/config"
	"github.com/xkilldash9x/glimpse-cli/pkg/action"
	"github.com/xkilldash9x/glimpse-cli/pkg/observe"
)

// pageMetrics is the result of the in-page measurement script.
type pageMetrics struct {
	ScrollY      int `json:"scrollY"`
	ScrollHeight int `json:"scrollHeight"`
	InnerWidth   int `json:"innerWidth"`
	InnerHeight  int `json:"innerHeight"`
}

const metricsJS = `({
	scrollY: Math.round(window.scrollY),
	scrollHeight: Math.round(Math.max(document.documentElement.scrollHeight, document.body ? document.body.scrollHeight : 0)),
	innerWidth: window.innerWidth,
	innerHeight: window.innerHeight
})`

// Session implements Controller over a dedicated Chrome instance.
type Session struct {
	cfg         config.BrowserConfig
	logger      *zap.Logger
	allocCancel context.CancelFunc
	browserCtx  context.Context
	ctxCancel   context.CancelFunc
}

// NewSession launches Chrome and verifies it responds before returning.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, buildAllocatorOptions(cfg)...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		ctxCancel:   ctxCancel,
	}

	startCtx, cancel := context.WithTimeout(browserCtx, cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	s.logger.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Float64("device_scale_factor", cfg.DeviceScaleFactor),
	)
	return s, nil
}

// buildAllocatorOptions assembles the launch flags for the session.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("force-device-scale-factor", fmt.Sprintf("%g", cfg.DeviceScaleFactor)),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)
	if cfg.DataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.DataDir))
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Capture screenshots the current viewport and collects the page metrics the
// observation builder needs. URL, title, scroll state and navigation history
// are read in the same DevTools pass as the screenshot.
func (s *Session) Capture(ctx context.Context) (observe.Capture, error) {
	tctx, cancel := s.actionContext(ctx, s.cfg.ActionTimeout)
	defer cancel()

	var (
		buf     []byte
		url     string
		title   string
		metrics pageMetrics
		nav     observe.Navigation
	)

	err := chromedp.Run(tctx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(metricsJS, &metrics),
		chromedp.ActionFunc(func(ctx context.Context) error {
			idx, entries, err := page.GetNavigationHistory().Do(ctx)
			if err != nil {
				return fmt.Errorf("reading navigation history: %w", err)
			}
			nav.CanGoBack = idx > 0
			nav.CanGoForward = int(idx) < len(entries)-1

			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("capturing screenshot: %w", err)
			}
			return nil
		}),
	)
	if err != nil {
		return observe.Capture{}, err
	}

	dims, err := png.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return observe.Capture{}, fmt.Errorf("decoding screenshot header: %w", err)
	}

	cap := observe.Capture{
		PNG:         buf,
		Width:       dims.Width,
		Height:      dims.Height,
		DeviceScale: s.cfg.DeviceScaleFactor,
		Viewport: observe.Viewport{
			Width:         metrics.InnerWidth,
			Height:        metrics.InnerHeight,
			ScrollY:       metrics.ScrollY,
			ScrollHeight:  metrics.ScrollHeight,
			CanScrollDown: metrics.ScrollY+metrics.InnerHeight < metrics.ScrollHeight-1,
		},
		Nav:   nav,
		URL:   url,
		Title: title,
	}

	s.logger.Debug("Captured page state",
		zap.String("url", url),
		zap.Int("screenshot_w", dims.Width),
		zap.Int("screenshot_h", dims.Height),
		zap.Int("scroll_y", metrics.ScrollY),
	)
	return cap, nil
}

// Execute performs one grounded action. Page-level failures come back inside
// the ActionResult so the loop can feed them to the model; only session-level
// failures return an error.
func (s *Session) Execute(ctx context.Context, p *action.Parsed, obs *observe.PageObservation) (ActionResult, error) {
	// A dispatched action settles on its own clock. Caller cancellation is
	// observed by the loop between steps, not mid-interaction, so the page is
	// never left with a half-delivered input event.
	tctx, cancel := s.executionContext(s.executionTimeout(p))
	defer cancel()

	var act chromedp.Action
	switch p.Kind {
	case action.KindClick:
		a, err := s.clickAction(p, obs)
		if err != nil {
			return ActionResult{ErrorMessage: err.Error()}, nil
		}
		act = a
	case action.KindType:
		a, err := s.typeAction(p, obs)
		if err != nil {
			return ActionResult{ErrorMessage: err.Error()}, nil
		}
		act = a
	case action.KindScroll:
		act = s.scrollAction(p)
	case action.KindNavigate:
		act = chromedp.Navigate(p.URL)
	case action.KindBack:
		act = chromedp.NavigateBack()
	case action.KindWait:
		act = chromedp.Sleep(p.Wait)
	default:
		return ActionResult{}, fmt.Errorf("action kind %q does not touch the browser", p.Kind)
	}

	if err := chromedp.Run(tctx, act); err != nil {
		s.logger.Warn("Action execution failed",
			zap.String("kind", string(p.Kind)),
			zap.Error(err),
		)
		return ActionResult{ErrorMessage: err.Error()}, nil
	}

	if s.cfg.PostLoadWait > 0 && p.Kind != action.KindWait {
		_ = chromedp.Run(tctx, chromedp.Sleep(s.cfg.PostLoadWait))
	}

	var newURL string
	if err := chromedp.Run(tctx, chromedp.Location(&newURL)); err != nil {
		return ActionResult{Success: true}, nil
	}
	return ActionResult{Success: true, NewURL: newURL}, nil
}

// Navigate loads the given URL and waits for the navigation to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	tctx, cancel := s.actionContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.Navigate(url))
}

// Close tears the browser down. Safe to call more than once.
func (s *Session) Close() error {
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

func (s *Session) clickAction(p *action.Parsed, obs *observe.PageObservation) (chromedp.Action, error) {
	x, y, err := s.elementPoint(p.ElementIndex, obs)
	if err != nil {
		return nil, err
	}
	return chromedp.MouseClickXY(x, y), nil
}

// typeAction clicks the element to focus it, selects any existing content and
// replaces it with the new text.
func (s *Session) typeAction(p *action.Parsed, obs *observe.PageObservation) (chromedp.Action, error) {
	x, y, err := s.elementPoint(p.ElementIndex, obs)
	if err != nil {
		return nil, err
	}
	actions := []chromedp.Action{
		chromedp.MouseClickXY(x, y),
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.InsertText(p.Text).Do(ctx)
		}),
	}
	if p.Enter {
		actions = append(actions, chromedp.KeyEvent(kb.Enter))
	}
	return chromedp.Tasks(actions), nil
}

func (s *Session) scrollAction(p *action.Parsed) chromedp.Action {
	pages := p.Pages
	if pages <= 0 {
		pages = 1
	}
	if p.Direction == action.ScrollUp {
		pages = -pages
	}
	script := fmt.Sprintf("window.scrollBy(0, window.innerHeight * %d)", pages)
	return chromedp.Evaluate(script, nil)
}

func (s *Session) elementPoint(index int, obs *observe.PageObservation) (float64, float64, error) {
	if obs == nil {
		return 0, 0, fmt.Errorf("no observation to resolve element %d against", index)
	}
	el, ok := obs.Element(index)
	if !ok {
		return 0, 0, fmt.Errorf("element %d not present in observation", index)
	}
	x, y := viewportPoint(el.Box, obs.ScreenshotW, obs.ScreenshotH, obs.Viewport)
	return x, y, nil
}

func (s *Session) executionTimeout(p *action.Parsed) time.Duration {
	timeout := s.cfg.ActionTimeout
	if p.Kind == action.KindNavigate || p.Kind == action.KindBack {
		timeout = s.cfg.NavigationTimeout
	}
	if p.Kind == action.KindWait {
		timeout += p.Wait
	}
	return timeout
}

// actionContext scopes one DevTools interaction. The caller's deadline still
// applies through ctx; the browser context carries the session.
func (s *Session) actionContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// executionContext bounds a dispatched action by its timeout alone, with no
// tie to the caller's context.
func (s *Session) executionContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.browserCtx, timeout)
}
