// pkg/agent/gate.go
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xkilldash9x/glimpse-cli/pkg/action"
)

// Decision is the operator's verdict on a proposed action.
type Decision struct {
	Approve bool
	// Edited replaces the proposed action when the operator rewrote it.
	Edited *action.Parsed
	Abort  bool
}

// Gate reviews each grounded action before it reaches the browser.
type Gate interface {
	Confirm(ctx context.Context, p *action.Parsed, raw string) (Decision, error)
}

// AutoApproveGate passes every action through, for unattended runs.
type AutoApproveGate struct{}

func (AutoApproveGate) Confirm(ctx context.Context, p *action.Parsed, raw string) (Decision, error) {
	return Decision{Approve: true}, nil
}

// ConsoleGate prompts the operator on each proposed action: approve, reject
// with an alternative command, or abort the run.
type ConsoleGate struct {
	In  io.Reader
	Out io.Writer
}

func (g *ConsoleGate) Confirm(ctx context.Context, p *action.Parsed, raw string) (Decision, error) {
	fmt.Fprintf(g.Out, "\nProposed action: %s\n", describe(p))
	fmt.Fprintf(g.Out, "[y] approve  [e] edit  [n] reject  [a] abort > ")

	reader := bufio.NewReader(g.In)
	for {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return Decision{Abort: true}, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "":
			return Decision{Approve: true}, nil
		case "n", "no":
			return Decision{}, nil
		case "a", "abort", "q", "quit":
			return Decision{Abort: true}, nil
		case "e", "edit":
			fmt.Fprintf(g.Out, "replacement command > ")
			edited, err := reader.ReadString('\n')
			if err != nil {
				return Decision{Abort: true}, nil
			}
			parsed, perr := action.Parse(edited)
			if perr != nil {
				fmt.Fprintf(g.Out, "could not parse replacement: %v\n[y] approve  [e] edit  [n] reject  [a] abort > ", perr)
				continue
			}
			return Decision{Approve: true, Edited: parsed}, nil
		default:
			fmt.Fprintf(g.Out, "[y] approve  [e] edit  [n] reject  [a] abort > ")
		}
	}
}

func describe(p *action.Parsed) string {
	switch p.Kind {
	case action.KindClick:
		return fmt.Sprintf("click element %d", p.ElementIndex)
	case action.KindType:
		return fmt.Sprintf("type %q into element %d (enter=%t)", p.Text, p.ElementIndex, p.Enter)
	case action.KindScroll:
		return fmt.Sprintf("scroll %s", p.Direction)
	case action.KindNavigate:
		return fmt.Sprintf("navigate to %s", p.URL)
	case action.KindBack:
		return "go back"
	case action.KindWait:
		return fmt.Sprintf("wait %s", p.Wait)
	case action.KindThinking:
		return fmt.Sprintf("thinking: %s", p.Message)
	case action.KindFinish:
		return fmt.Sprintf("finish: %s", p.Result)
	default:
		return string(p.Kind)
	}
}
