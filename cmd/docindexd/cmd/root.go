// Package cmd provides docindexd's CLI commands: a root command with
// persistent flags for config/debug, and one subcommand per data-plane
// operation (index, search, list, remove, serve).
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docindex/docindex/internal/logging"
)

var (
	configPath string
	debugMode  bool
	logCleanup func()
)

// NewRootCmd builds docindexd's root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docindexd",
		Short: "Index and search third-party library documentation",
		Long: `docindexd crawls documentation sites (or local folders), splits and
embeds their content, and serves hybrid (vector + full-text) search over
the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := logging.DefaultConfig()
			cfg.WriteToStderr = false
			if debugMode {
				cfg = logging.DebugConfig()
			}
			logger, cleanup, err := logging.Setup(cfg)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			logCleanup = cleanup
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCleanup != nil {
				logCleanup()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a docindexd config file (YAML)")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newServeCmd())

	return root
}

func warnClose(name string, err error) {
	if err != nil {
		slog.Warn("failed to close component cleanly", "component", name, "error", err)
	}
}
