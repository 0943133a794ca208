// -- cmd/interactive.go --
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Run instructions one after another against the same browser session",
	Long: `Starts the browser once and reads instructions from stdin. The page carries
over between instructions, so a follow-up can continue from where the last
one finished. Enter "q" to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		loop, cleanup, err := buildLoop(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return loop.RunInteractive(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	interactiveCmd.Flags().BoolVar(&flagConfirm, "confirm", false, "ask before executing each action")
	rootCmd.AddCommand(interactiveCmd)
}
