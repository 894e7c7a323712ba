package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-etl/internal/job"
	"github.com/askiada/go-etl/internal/logger"
)

func newGrepCmd(rFlags *rootFlags) *cobra.Command {
	var pattern string

	grepCmd := &cobra.Command{
		Use:   "grep --pattern PATTERN INPUT OUTPUT",
		Short: "Copy the trimmed lines of INPUT containing PATTERN to OUTPUT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closer, err := newLogger(cmd, rFlags.apply(logger.Config{}))
			if err != nil {
				return errors.Wrap(err, "unable to create logger")
			}
			defer closer.Close()

			summary, err := job.Grep(cmd.Context(), args[0], args[1], pattern, log)
			if err != nil {
				return errors.Wrapf(err, "unable to grep %s", args[0])
			}

			log.Info().
				Int64("read", summary.Read).
				Int64("matched", summary.Emitted).
				Str("output", args[1]).
				Msg("grep finished")

			return nil
		},
	}

	grepCmd.Flags().StringVarP(&pattern, "pattern", "p", "ERROR", "Text the copied lines contain")

	return grepCmd
}
