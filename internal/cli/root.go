// Package cli implements the labexec command-line client.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/labexec/internal/config"
	"github.com/me/labexec/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking LABEXEC_SERVER env var first.
func defaultServer() string {
	return config.ServerURL("http://localhost:8090")
}

// NewRootCmd creates the root cobra command for the labexec CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "labexec",
		Short: "labexec runs analyses on a Galaxy server",
		Long:  "labexec submits analyses to a Galaxy workflow manager, tracks them and cleans up what they leave behind.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "labexec server URL (or LABEXEC_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newListCmd(),
		newResultsCmd(),
		newCleanupCmd(),
		newWorkflowsCmd(),
	)

	return root
}
