// Package commands defines all Cobra CLI commands for the ytqa binary.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/ytqa-go/internal/audit"
	"github.com/54b3r/ytqa-go/internal/config"
	"github.com/54b3r/ytqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// settings is the typed configuration resolved by PersistentPreRunE.
var settings *config.Settings

// logger is the process logger built from the resolved settings.
var logger *slog.Logger

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ytqa",
		Short: "ytqa: ask questions about YouTube videos",
		Long: `ytqa fetches YouTube transcripts, indexes them into a vector store, and
answers questions about a video using only that video's transcript.

Configuration is read from .env, a YAML config file (~/.ytqa/config.yaml),
and environment variables, in increasing order of precedence.
See 'ytqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv()
			bootLog := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, bootLog)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			settings = s
			logger = logging.NewWithOptions(os.Stderr, s.Logging.Level, s.Logging.Format)
			slog.SetDefault(logger)

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(logger, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ytqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewVersionCmd(),
	)

	return root
}
