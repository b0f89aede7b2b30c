package commands

import (
	"context"

	"medcover-tracking/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fieldtrack",
	Short: "Field tracking simulator and offline queue tools",
	Long: `fieldtrack drives the location tracker from scripted scenarios and inspects
or flushes the on-device offline queue.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv()
	},
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(queueCmd)
}
