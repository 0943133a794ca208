// pkg/agent/loop.go

// Package agent runs the observe-reason-act loop: capture the page, ground it
// into an indexed observation, ask the reasoning model for one command,
// validate the command against the observation it was grounded on, execute it,
// and record the exchange.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/glimpse-cli/internal/config"
	"github.com/xkilldash9x/glimpse-cli/pkg/action"
	"github.com/xkilldash9x/glimpse-cli/pkg/browser"
	"github.com/xkilldash9x/glimpse-cli/pkg/history"
	"github.com/xkilldash9x/glimpse-cli/pkg/llmclient"
	"github.com/xkilldash9x/glimpse-cli/pkg/memory"
	"github.com/xkilldash9x/glimpse-cli/pkg/observe"
	"github.com/xkilldash9x/glimpse-cli/pkg/prompt"
	"github.com/xkilldash9x/glimpse-cli/pkg/vision"
)

// Loop owns one browser session and executes instructions against it. It is
// not safe for concurrent use; one Loop serves one run at a time.
type Loop struct {
	logger   *zap.Logger
	cfg      config.AgentConfig
	browser  browser.Controller
	vision   vision.Client
	llm      llmclient.Client
	renderer *prompt.Renderer
	builder  *observe.Builder
	gate     Gate

	history *history.Manager
	memory  *memory.Store
	trail   []prompt.PageVisit
	current *observe.PageObservation
	phase   Phase
}

// New wires a loop from its collaborators. The gate defaults to auto-approve
// when nil.
func New(cfg *config.Config, ctrl browser.Controller, vis vision.Client, llm llmclient.Client, gate Gate, logger *zap.Logger) *Loop {
	if gate == nil {
		gate = AutoApproveGate{}
	}
	return &Loop{
		logger:   logger.Named("agent"),
		cfg:      cfg.Agent,
		browser:  ctrl,
		vision:   vis,
		llm:      llm,
		renderer: prompt.NewRenderer(cfg.Agent.ElementCap),
		builder:  observe.NewBuilder(logger, cfg.Vision.OverlapThreshold, cfg.Vision.ViewportTolerancePx),
		gate:     gate,
		history:  history.New(cfg.Agent.MaxHistorySize),
		memory:   memory.NewStore(),
		phase:    PhaseIdle,
	}
}

// Phase reports the loop's current pipeline stage.
func (l *Loop) Phase() Phase { return l.phase }

// Memory exposes the run's note store.
func (l *Loop) Memory() *memory.Store { return l.memory }

// stepOutcome carries one step's verdict back to the run driver.
type stepOutcome struct {
	final *FinalResult
	// nextError is surfaced to the model in the next step's prompt.
	nextError string
	// nextInput is the next step's user input (the thinking continuation).
	nextInput string
}

// RunInstruction executes one instruction to completion.
func (l *Loop) RunInstruction(ctx context.Context, instruction string) (FinalResult, error) {
	l.reset(instruction)

	if l.cfg.StartURL != "" {
		if err := l.browser.Navigate(ctx, l.cfg.StartURL); err != nil {
			l.phase = PhaseTerminated
			return FinalResult{Status: StatusFailed, Reason: fmt.Sprintf("loading start page: %v", err)}, err
		}
	}

	var carryError, carryInput string
	for step := 1; step <= l.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			l.phase = PhaseTerminated
			return FinalResult{Status: StatusAborted, Reason: err.Error(), Steps: step - 1}, err
		}

		out, err := l.runStep(ctx, step, instruction, carryInput, carryError)
		if err != nil {
			l.phase = PhaseTerminated
			return FinalResult{Status: StatusFailed, Reason: err.Error(), Steps: step}, err
		}
		if out.final != nil {
			l.phase = PhaseTerminated
			out.final.Steps = step
			return *out.final, nil
		}
		carryError = out.nextError
		carryInput = out.nextInput
	}

	l.phase = PhaseTerminated
	return FinalResult{
		Status: StatusStepBudget,
		Reason: fmt.Sprintf("no completion after %d steps", l.cfg.MaxSteps),
		Steps:  l.cfg.MaxSteps,
	}, nil
}

func (l *Loop) reset(instruction string) {
	l.history.Clear()
	l.memory.Clear()
	l.trail = nil
	l.current = nil
	l.phase = PhaseIdle
	// Entry 0 pins the task instruction; truncation never evicts it.
	l.history.Append(history.Entry{
		Role:    history.RoleObservation,
		Content: instruction,
		Step:    0,
		At:      time.Now(),
	})
}

func (l *Loop) runStep(ctx context.Context, step int, instruction, userInput, prevError string) (stepOutcome, error) {
	l.phase = PhaseObserving
	obs, err := l.observe(ctx, step)
	if err != nil {
		return stepOutcome{}, err
	}

	l.phase = PhaseReasoning
	pctx := l.renderer.Render(prompt.Turn{
		Instruction: instruction,
		UserInput:   userInput,
		FirstTurn:   step == 1,
		Observation: obs,
		History:     l.history.Entries(),
		Memory:      l.memory.All(),
		PageTrail:   l.trail,
		ExecError:   prevError,
	})

	raw, err := l.llm.Complete(ctx, pctx)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("reasoning request failed: %w", err)
	}

	parsed, raw, err := l.parseWithRetry(ctx, pctx, raw)
	if err != nil {
		l.record(step, obs, userInput, raw)
		return stepOutcome{final: &FinalResult{
			Status: StatusFailed,
			Reason: fmt.Sprintf("model reply not parseable after corrective retry: %v", err),
		}}, nil
	}

	for _, note := range parsed.Memorize {
		l.memory.Add(note, step)
		l.logger.Debug("Memorized note", zap.Int("step", step), zap.String("note", note))
	}

	if gerr := action.Ground(parsed, obs); gerr != nil {
		l.logger.Info("Action failed grounding",
			zap.Int("step", step),
			zap.String("kind", string(parsed.Kind)),
			zap.String("reason", gerr.Error()),
		)
		l.record(step, obs, userInput, raw)
		return stepOutcome{nextError: gerr.Error()}, nil
	}

	decision, err := l.gate.Confirm(ctx, parsed, raw)
	if err != nil {
		return stepOutcome{}, err
	}
	if decision.Abort {
		l.record(step, obs, userInput, raw)
		return stepOutcome{final: &FinalResult{Status: StatusAborted, Reason: "operator aborted the run"}}, nil
	}
	if !decision.Approve {
		l.record(step, obs, userInput, raw)
		return stepOutcome{nextError: "the operator rejected this action; choose a different approach"}, nil
	}
	if decision.Edited != nil {
		parsed = decision.Edited
		if gerr := action.Ground(parsed, obs); gerr != nil {
			l.record(step, obs, userInput, raw)
			return stepOutcome{nextError: gerr.Error()}, nil
		}
	}

	l.phase = PhaseActing
	out := l.act(ctx, step, parsed, raw)

	l.phase = PhaseRecording
	l.record(step, obs, userInput, raw)
	return out, nil
}

// act dispatches the grounded action. Finish and thinking never touch the
// browser.
func (l *Loop) act(ctx context.Context, step int, parsed *action.Parsed, raw string) stepOutcome {
	switch {
	case parsed.Terminal():
		l.logger.Info("Task reported complete", zap.Int("step", step), zap.String("result", parsed.Result))
		return stepOutcome{final: &FinalResult{Status: StatusCompleted, Result: parsed.Result}}

	case parsed.Kind == action.KindThinking:
		l.logger.Info("Model thinking", zap.Int("step", step), zap.String("message", parsed.Message))
		return stepOutcome{nextInput: prompt.NudgeToken}

	default:
		result, err := l.browser.Execute(ctx, parsed, l.current)
		if err != nil {
			return stepOutcome{final: &FinalResult{
				Status: StatusFailed,
				Reason: fmt.Sprintf("browser session failed: %v", err),
			}}
		}
		if !result.Success {
			l.logger.Warn("Action did not succeed",
				zap.Int("step", step),
				zap.String("kind", string(parsed.Kind)),
				zap.String("error", result.ErrorMessage),
			)
			return stepOutcome{nextError: result.ErrorMessage}
		}
		l.logger.Debug("Action executed",
			zap.Int("step", step),
			zap.String("kind", string(parsed.Kind)),
			zap.String("url", result.NewURL),
		)
		if parsed.Continue {
			// The model asked to act again after seeing this result.
			return stepOutcome{nextInput: prompt.NudgeToken}
		}
		return stepOutcome{}
	}
}

// parseWithRetry parses the model reply, giving the model one corrective
// chance on an unparseable response.
func (l *Loop) parseWithRetry(ctx context.Context, pctx prompt.PromptContext, raw string) (*action.Parsed, string, error) {
	parsed, err := action.Parse(raw)
	if err == nil {
		return parsed, raw, nil
	}
	if !action.IsUnparseable(err) {
		return nil, raw, err
	}

	l.logger.Warn("Unparseable model reply, sending corrective prompt", zap.String("reply", raw))
	retry, cerr := l.llm.Complete(ctx, prompt.PromptContext{
		System: pctx.System,
		User:   prompt.Corrective(raw),
	})
	if cerr != nil {
		return nil, raw, fmt.Errorf("corrective request failed: %w", cerr)
	}

	parsed, err = action.Parse(retry)
	if err != nil {
		return nil, retry, action.Unrecoverable(err)
	}
	return parsed, retry, nil
}

// observe captures and grounds the current page, retrying when the screenshot
// disagrees with the reported viewport (mid-render captures).
func (l *Loop) observe(ctx context.Context, step int) (*observe.PageObservation, error) {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.cfg.RetryBackoff):
			}
		}

		cap, err := l.browser.Capture(ctx)
		if err != nil {
			lastErr = err
			l.logger.Warn("Capture failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		det, texts, err := l.analyze(ctx, cap.PNG)
		if err != nil {
			lastErr = err
			l.logger.Warn("Vision analysis failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		obs, err := l.builder.Build(step, cap, det.Elements, texts)
		if err != nil {
			lastErr = err
			if errors.Is(err, observe.ErrViewportMismatch) {
				l.logger.Warn("Screenshot does not match viewport, recapturing", zap.Int("attempt", attempt+1))
				continue
			}
			return nil, err
		}

		if len(det.AnnotatedPNG) > 0 {
			obs.Screenshot = det.AnnotatedPNG
		}
		l.dumpScreenshot(step, obs.Screenshot)
		l.updateTrail(obs)
		l.current = obs
		return obs, nil
	}
	return nil, fmt.Errorf("observation failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}

// analyze runs element detection and OCR concurrently on one screenshot.
func (l *Loop) analyze(ctx context.Context, png []byte) (vision.DetectResult, []observe.Text, error) {
	var (
		det   vision.DetectResult
		texts []observe.Text
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		det, err = l.vision.Detect(gctx, png)
		return err
	})
	g.Go(func() error {
		var err error
		texts, err = l.vision.RecognizeText(gctx, png)
		return err
	})
	if err := g.Wait(); err != nil {
		return vision.DetectResult{}, nil, err
	}
	return det, texts, nil
}

func (l *Loop) record(step int, obs *observe.PageObservation, userInput, raw string) {
	now := time.Now()
	l.history.Append(history.Entry{
		Role:    history.RoleObservation,
		Content: prompt.StepDigest(obs, userInput),
		Step:    step,
		At:      now,
	})
	l.history.Append(history.Entry{
		Role:    history.RoleResponse,
		Content: raw,
		Step:    step,
		At:      now,
	})
	l.history.Truncate()
}

func (l *Loop) updateTrail(obs *observe.PageObservation) {
	if n := len(l.trail); n > 0 && l.trail[n-1].URL == obs.URL {
		l.trail[n-1].Title = obs.Title
		return
	}
	l.trail = append(l.trail, prompt.PageVisit{URL: obs.URL, Title: obs.Title})
	if limit := l.cfg.PageTrailSize; limit > 0 && len(l.trail) > limit {
		l.trail = l.trail[len(l.trail)-limit:]
	}
}

func (l *Loop) dumpScreenshot(step int, png []byte) {
	if l.cfg.ScreenshotDebug == "" || len(png) == 0 {
		return
	}
	path := filepath.Join(l.cfg.ScreenshotDebug, fmt.Sprintf("step-%03d.png", step))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		l.logger.Warn("Could not write debug screenshot", zap.String("path", path), zap.Error(err))
	}
}
