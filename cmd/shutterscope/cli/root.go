package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shutterscope",
	Short: "shutterscope: screenshot reconnaissance results from the terminal",
	Long: `shutterscope talks to a shutterscope results server.
Show the statistics dashboard, browse and delete probe results,
and import JSON Lines result files produced by scanners.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "shutterscope server URL (defaults to stored login)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}
