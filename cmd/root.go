package cmd

import (
	"github.com/spf13/cobra"

	"drover/internal/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Drover - remote device automation agent",
	Long: `Drover connects local mobile devices to a remote automation backend.
The agent maintains an authenticated websocket session and executes automation
commands against the selected device. A built-in gateway provides the backend
side for local development.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.LOG_DEBUG)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(gatewayCmd)
}
