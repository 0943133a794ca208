// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/glimpse-cli/internal/observability"
	"github.com/xkilldash9x/glimpse-cli/pkg/agent"
	"github.com/xkilldash9x/glimpse-cli/pkg/browser"
	"github.com/xkilldash9x/glimpse-cli/pkg/llmclient"
	"github.com/xkilldash9x/glimpse-cli/pkg/vision"
)

var (
	flagConfirm  bool
	flagStartURL string
)

var runCmd = &cobra.Command{
	Use:   `run "<instruction>"`,
	Short: "Execute a single instruction and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		loop, cleanup, err := buildLoop(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := loop.RunInstruction(ctx, args[0])
		if err != nil {
			return err
		}

		switch result.Status {
		case agent.StatusCompleted:
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", result.Result)
			return nil
		default:
			return fmt.Errorf("run ended with status %s after %d steps: %s", result.Status, result.Steps, result.Reason)
		}
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagConfirm, "confirm", false, "ask before executing each action")
	runCmd.Flags().StringVar(&flagStartURL, "start-url", "", "page to open before the first step (overrides config)")
	rootCmd.AddCommand(runCmd)
}

// buildLoop assembles the browser session, vision client, reasoning client
// and control loop from the loaded config. The returned cleanup closes the
// browser.
func buildLoop(ctx context.Context) (*agent.Loop, func(), error) {
	logger := observability.GetLogger()

	if flagStartURL != "" {
		cfg.Agent.StartURL = flagStartURL
	}

	llm, err := llmclient.New(cfg.LLM, logger)
	if err != nil {
		return nil, nil, err
	}

	session, err := browser.NewSession(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("Browser shutdown reported an error", zap.Error(cerr))
		}
	}

	var gate agent.Gate
	if flagConfirm {
		gate = &agent.ConsoleGate{In: os.Stdin, Out: os.Stdout}
	}

	vis := vision.NewHTTPClient(cfg.Vision, logger)
	return agent.New(cfg, session, vis, llm, gate, logger), cleanup, nil
}
