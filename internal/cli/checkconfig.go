package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config OK\n")
			fmt.Fprintf(out, "  log:     %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
			if len(cfg.Queues) == 0 {
				fmt.Fprintf(out, "  queues:  default set (high_priority, standard, batch)\n")
			} else {
				fmt.Fprintf(out, "  queues:  %d declared\n", len(cfg.Queues))
				for _, q := range cfg.Queues {
					strategy := q.Strategy
					if strategy == "" {
						strategy = "priority_first"
					}
					fmt.Fprintf(out, "    - %s (%s)\n", q.Name, strategy)
				}
			}
			fmt.Fprintf(out, "  routing: %d rules\n", len(cfg.Routing))
			fmt.Fprintf(out, "  retry:   max %d, base delay %s\n",
				cfg.Retry.MaxRetries, cfg.Retry.RetryDelay.Std())
			fmt.Fprintf(out, "  slas:    %d defined\n", len(cfg.SLA.Definitions))
			if cfg.Archive.DBPath != "" {
				fmt.Fprintf(out, "  archive: %s\n", cfg.Archive.DBPath)
			} else {
				fmt.Fprintf(out, "  archive: disabled\n")
			}
			return nil
		},
	}
}
