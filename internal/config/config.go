// Package config loads the job configuration of the command line.
//
// A job is described by a YAML file. Every scalar value can be overridden by an
// environment variable prefixed with ETL_, "log.level" becoming ETL_LOG_LEVEL for instance.
// Variables can also be set in a .env file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/askiada/go-etl/internal/logger"
	"github.com/askiada/go-etl/pkg/contract"
)

const EnvPrefix = "ETL"

// Source types.
const (
	SourceLines     = "lines"
	SourceJSONLines = "jsonl"
	SourceJSON      = "json"
	SourceCSV       = "csv"
	SourceHTTP      = "http"
)

// Sink types.
const (
	SinkJSON      = "json"
	SinkJSONLines = "jsonl"
	SinkLines     = "lines"
	SinkStdout    = "stdout"
)

// Step types.
const (
	StepContains    = "contains"
	StepEquals      = "equals"
	StepGreaterThan = "greater_than"
	StepUpper       = "upper"
	StepTrim        = "trim"
	StepTax         = "tax"
	StepRename      = "rename"
	StepDrop        = "drop"
	StepDefault     = "default"
	StepContract    = "contract"
)

var ErrInvalidConfig = errors.New("invalid config")

// Source describes where the records are read from.
type Source struct {
	Type string `mapstructure:"type" validate:"required,oneof=lines jsonl json csv http"`
	Path string `mapstructure:"path" validate:"required_unless=Type http"`
	URL  string `mapstructure:"url" validate:"required_if=Type http"`
	// Retries is the number of attempts of an HTTP request.
	Retries int           `mapstructure:"retries" validate:"gte=0,lte=10"`
	Backoff time.Duration `mapstructure:"backoff" validate:"gte=0"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// Step describes one transform. The fields used depend on Type.
type Step struct {
	Name  string  `mapstructure:"name" validate:"required"`
	Type  string  `mapstructure:"type" validate:"required,oneof=contains equals greater_than upper trim tax rename drop default contract"`
	Field string  `mapstructure:"field" validate:"required_unless=Type contract"`
	Value any     `mapstructure:"value"`
	Rate  float64 `mapstructure:"rate" validate:"gte=0"`
	// To is the new name of a renamed field, or the total field of the tax step.
	To    string           `mapstructure:"to" validate:"required_if=Type rename"`
	Rules []contract.Field `mapstructure:"rules" validate:"required_if=Type contract,dive"`
	// Concurrency is the number of records transformed at once. Above 1 the step does not keep the order.
	Concurrency int `mapstructure:"concurrency" validate:"gte=0,lte=64"`
}

// Sink describes where the records are written.
type Sink struct {
	Type string `mapstructure:"type" validate:"required,oneof=json jsonl lines stdout"`
	Path string `mapstructure:"path" validate:"required_unless=Type stdout"`
	// Field is the field written by the lines sink.
	Field string `mapstructure:"field" validate:"required_if=Type lines"`
}

// Quarantine receives the records skipped because of an error, with the reasons.
type Quarantine struct {
	Path string `mapstructure:"path"`
}

// Job is the configuration of one run.
type Job struct {
	Name       string        `mapstructure:"name" validate:"required"`
	Source     Source        `mapstructure:"source"`
	Steps      []Step        `mapstructure:"steps" validate:"dive"`
	OnError    string        `mapstructure:"on_error" validate:"oneof=halt skip"`
	Sink       Sink          `mapstructure:"sink"`
	Quarantine Quarantine    `mapstructure:"quarantine"`
	Monitor    bool          `mapstructure:"monitor"`
	Log        logger.Config `mapstructure:"log"`
}

// ApplyDefaults applies default values to the job configuration.
func (j *Job) ApplyDefaults() {
	if j.OnError == "" {
		j.OnError = "halt"
	}
	if j.Source.Type == SourceHTTP && j.Source.Retries == 0 {
		j.Source.Retries = 3
	}
	if j.Source.Backoff == 0 {
		j.Source.Backoff = time.Second
	}
	if j.Source.Timeout == 0 {
		j.Source.Timeout = 30 * time.Second
	}
	for i := range j.Steps {
		if j.Steps[i].Type == StepTax {
			if j.Steps[i].Rate == 0 {
				j.Steps[i].Rate = 0.13
			}
			if j.Steps[i].To == "" {
				j.Steps[i].To = "total"
			}
		}
	}
	j.Log.ApplyDefaults()
}

// Validate validates the job configuration.
func (j *Job) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(j)
	if err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			msgs := make([]string, 0, len(vErrs))
			for _, vErr := range vErrs {
				msgs = append(msgs, vErr.Namespace()+" failed on "+vErr.Tag())
			}

			return errors.Wrap(ErrInvalidConfig, strings.Join(msgs, "; "))
		}

		return errors.Wrap(err, "unable to validate config")
	}

	if j.Source.URL != "" {
		if err := validate.Var(j.Source.URL, "url"); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "source.url %q is not a valid url", j.Source.URL)
		}
	}

	names := make(map[string]struct{}, len(j.Steps))
	for _, step := range j.Steps {
		if step.Name == j.Name {
			return errors.Wrapf(ErrInvalidConfig, "step %s has the name of the job", step.Name)
		}
		if _, ok := names[step.Name]; ok {
			return errors.Wrapf(ErrInvalidConfig, "step %s is declared twice", step.Name)
		}
		names[step.Name] = struct{}{}
	}

	return errors.Wrap(j.Log.Validate(), "invalid log config")
}

// LoadOption is a functional option for Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	envFile string
}

// WithEnvFile loads the environment variables of path before reading the job.
// A missing file is ignored.
func WithEnvFile(path string) LoadOption {
	return func(lc *loadConfig) { lc.envFile = path }
}

// scalarKeys are the keys that can be overridden from the environment.
var scalarKeys = []string{
	"name",
	"on_error",
	"monitor",
	"source.type",
	"source.path",
	"source.url",
	"source.retries",
	"source.backoff",
	"source.timeout",
	"sink.type",
	"sink.path",
	"sink.field",
	"quarantine.path",
	"log.level",
	"log.format",
	"log.output",
	"log.no_color",
	"log.timestamp",
}

// Load reads the job at path, applies the environment overrides and the defaults, and validates it.
func Load(path string, opts ...LoadOption) (*Job, error) {
	lc := loadConfig{envFile: ".env"}
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.envFile != "" {
		err := godotenv.Load(lc.envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "unable to load %s", lc.envFile)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range scalarKeys {
		// binding makes the key known even when the file does not set it
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "unable to bind %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	job := &Job{}
	if err := v.Unmarshal(job); err != nil {
		return nil, errors.Wrapf(err, "unable to decode %s", path)
	}

	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}
