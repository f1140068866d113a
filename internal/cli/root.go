package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teoat/nexus378-sub000/internal/config"
	"github.com/teoat/nexus378-sub000/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// loadConfig loads the --config file, or the defaults when none is given.
// Command-line log flags win over the file.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagDebug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// NewRootCmd creates the root cobra command for the taskmaster CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskmaster",
		Short: "Taskmaster job orchestration engine",
		Long:  "Taskmaster schedules, prioritizes, retries, and monitors jobs across dependency graphs.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := flagLogLevel
			if flagDebug {
				level = "debug"
			}
			logger = logging.New(logging.ParseLevel(level), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newCheckConfigCmd(),
	)

	return root
}
