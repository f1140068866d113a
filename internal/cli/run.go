package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teoat/nexus378-sub000/internal/archive"
	"github.com/teoat/nexus378-sub000/internal/engine"
	"github.com/teoat/nexus378-sub000/internal/queue"
)

func newRunCmd() *cobra.Command {
	var jobsFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestration engine",
		Long:  "Starts the engine and its maintenance loop: retry requeueing, timeout sweeps, deadlock detection, queue rebalancing, SLA evaluation, and cleanup. Optionally submits a batch of jobs from a YAML file at startup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			qm := queue.NewManager(queue.ManagerConfig{}, logger)
			if declared, ok := cfg.QueueConfigs(); ok {
				for name, qc := range declared {
					if _, err := qm.CreateQueue(name, qc); err != nil {
						return fmt.Errorf("creating queue %s: %w", name, err)
					}
				}
			} else if err := qm.CreateDefaultQueues(); err != nil {
				return err
			}
			for jobType, queueName := range cfg.Routing {
				if err := qm.SetRouting(jobType, queueName); err != nil {
					return fmt.Errorf("routing %s: %w", jobType, err)
				}
			}

			var store *archive.Store
			if cfg.Archive.DBPath != "" {
				store, err = archive.NewStore(cfg.Archive.DBPath, logger)
				if err != nil {
					return fmt.Errorf("opening archive: %w", err)
				}
				defer store.Close()
				if err := store.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrating archive: %w", err)
				}
			}

			eng := engine.New(engine.Config{
				Retention:          cfg.Engine.Retention.Std(),
				DefaultRetryPolicy: cfg.RetryPolicy(),
			}, qm, cfg.SLAMonitorConfig(), nil, store, logger)

			for _, def := range cfg.SLADefinitions() {
				if _, err := eng.SLA().AddSLA(def); err != nil {
					return fmt.Errorf("registering SLA %s: %w", def.Name, err)
				}
			}

			if jobsFile != "" {
				jobs, err := loadJobs(jobsFile)
				if err != nil {
					return err
				}
				for _, job := range jobs {
					if err := eng.Submit(job); err != nil {
						return fmt.Errorf("submitting job %s: %w", job.ID, err)
					}
				}
				logger.Info("jobs submitted", "count", len(jobs), "file", jobsFile)
			}

			loop := engine.NewLoop(eng, engine.LoopConfig{
				TimeoutInterval:   cfg.Engine.TimeoutInterval.Std(),
				DeadlockInterval:  cfg.Engine.DeadlockInterval.Std(),
				RebalanceInterval: cfg.Engine.RebalanceInterval.Std(),
				SLAInterval:       cfg.Engine.SLAInterval.Std(),
				CleanupInterval:   cfg.Engine.CleanupInterval.Std(),
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("engine starting")
			if err := loop.Start(ctx); err != nil && err != context.Canceled {
				return err
			}
			logger.Info("engine stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&jobsFile, "jobs", "", "YAML file of jobs to submit at startup")
	return cmd
}
