// pkg/agent/interactive.go
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// RunInteractive reads instructions from in and executes them one after
// another against the same browser session. Conversation history and memory
// reset per instruction; the page itself carries over, so a follow-up
// instruction continues from wherever the last one left the browser.
// "q" or "quit" ends the session.
func (l *Loop) RunInteractive(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "\ninstruction > ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "q" || line == "quit" || line == "exit":
			return nil
		}

		result, err := l.RunInstruction(ctx, line)
		if err != nil && ctx.Err() != nil {
			return err
		}

		switch result.Status {
		case StatusCompleted:
			fmt.Fprintf(out, "done (%d steps): %s\n", result.Steps, result.Result)
		default:
			fmt.Fprintf(out, "%s (%d steps): %s\n", result.Status, result.Steps, result.Reason)
		}
	}
}
