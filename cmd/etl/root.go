package main

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/askiada/go-etl/internal/logger"
)

// version is set at build time.
var version = "dev"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type rootFlags struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "etl",
		Short:         "Stream records from a source, through transforms, to a sink",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (json, console)")

	rootCmd.AddCommand(newRunCmd(flags), newGrepCmd(flags), newVersionCmd())

	return rootCmd
}

// apply overrides cfg with the flags set on the command line.
func (f *rootFlags) apply(cfg logger.Config) logger.Config {
	if f.logLevel != "" {
		cfg.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Format = f.logFormat
	}

	return cfg
}

// newLogger builds the logger of a command. The standard outputs are the ones of cmd.
func newLogger(cmd *cobra.Command, cfg logger.Config) (zerolog.Logger, io.Closer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), nil, err
	}

	switch strings.ToLower(cfg.Output) {
	case logger.OutputStdout:
		return logger.NewWithWriter(cfg, cmd.OutOrStdout()), nopCloser{}, nil
	case logger.OutputStderr:
		return logger.NewWithWriter(cfg, cmd.ErrOrStderr()), nopCloser{}, nil
	}

	return logger.New(cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), "etl "+version+"\n")

			return err
		},
	}
}
