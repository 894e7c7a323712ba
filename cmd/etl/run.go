package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-etl/internal/config"
	"github.com/askiada/go-etl/internal/job"
)

const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"
)

func newRunCmd(rFlags *rootFlags) *cobra.Command {
	var (
		configFile string
		envFile    string
		graphFile  string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the job described by a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := config.Load(configFile, config.WithEnvFile(envFile))
			if err != nil {
				return errors.Wrap(err, "unable to load config")
			}

			log, closer, err := newLogger(cmd, rFlags.apply(cfg.Log))
			if err != nil {
				return errors.Wrap(err, "unable to create logger")
			}
			defer func() {
				cErr := closer.Close()
				if cErr != nil && err == nil {
					err = errors.Wrap(cErr, "unable to close log file")
				}
			}()

			report, err := job.Run(cmd.Context(), cfg, job.Options{
				Log:       log,
				Stdout:    cmd.OutOrStdout(),
				GraphPath: graphFile,
			})

			status, event := statusSuccess, log.Info()
			if err != nil {
				status, event = statusError, log.Error().Err(err)
			}
			event.
				Str("job", cfg.Name).
				Str("status", status).
				Str("run_id", report.RunID.String()).
				Int64("read", report.Read).
				Int64("emitted", report.Emitted).
				Int64("filtered", report.Filtered).
				Int64("skipped", report.Skipped).
				Int("quarantined", report.Quarantined).
				Dur("duration", report.Duration().Round(time.Millisecond)).
				Msg("job finished")

			if len(report.Bottlenecks) > 0 {
				slowest := report.Bottlenecks[0]
				log.Info().
					Str("step", slowest.Step).
					Dur("avg_duration", slowest.AvgDuration).
					Float64("share", slowest.Share).
					Msg("slowest step")
			}

			return err
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "job.yaml", "Path to the job configuration file")
	runCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to an optional .env file")
	runCmd.Flags().StringVar(&graphFile, "graph", "", "Write the graph of the run to this DOT file")

	return runCmd
}
