// Package logger builds the zerolog logger of the command line from its configuration.
package logger

import (
	"io"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"

	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

var ErrInvalidConfig = errors.New("invalid logger config")

// Config contains the logging configuration.
// Output is stdout, stderr or the path of a file the logs are appended to.
type Config struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	NoColor   bool   `mapstructure:"no_color"`
	Timestamp bool   `mapstructure:"timestamp"`
}

// ApplyDefaults applies default values to the logging configuration.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = zerolog.LevelInfoValue
	}
	if c.Format == "" {
		c.Format = FormatConsole
	}
	if c.Output == "" {
		c.Output = OutputStderr
	}
}

// Validate validates the logging configuration.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil || c.Level == "" {
		return errors.Wrapf(ErrInvalidConfig, "log.level %q is unknown", c.Level)
	}

	validFormats := []string{FormatJSON, FormatConsole}
	if !slices.Contains(validFormats, strings.ToLower(c.Format)) {
		return errors.Wrapf(ErrInvalidConfig, "log.format must be one of %v (got: %s)", validFormats, c.Format)
	}

	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case OutputStdout:
		return os.Stdout, nopCloser{}, nil
	case OutputStderr, "":
		return os.Stderr, nopCloser{}, nil
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unable to open log file %s", output)
	}

	return file, file, nil
}

// New creates a logger from cfg. The closer releases the log file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out, closer, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	return NewWithWriter(cfg, out), closer, nil
}

// NewWithWriter creates a logger from cfg writing to w. Invalid levels fall back to info.
// Writes to w are serialized, so w does not have to be safe for concurrent use.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	cfg.ApplyDefaults()
	w = zerolog.SyncWriter(w)

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.ToLower(cfg.Format) == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: "15:04:05.000"}
	}

	zctx := zerolog.New(w).Level(level).With()
	if cfg.Timestamp {
		zctx = zctx.Timestamp()
	}

	return zctx.Logger()
}
