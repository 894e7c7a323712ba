// Package job runs the record pipelines described by the configuration.
package job

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/askiada/go-etl/internal/bottleneck"
	"github.com/askiada/go-etl/internal/config"
	"github.com/askiada/go-etl/pkg/contract"
	"github.com/askiada/go-etl/pkg/pipeline/drawer"
	"github.com/askiada/go-etl/pkg/pipeline/measure"
	"github.com/askiada/go-etl/pkg/record"
	"github.com/askiada/go-etl/pkg/retry"
	"github.com/askiada/go-etl/pkg/sink"
	"github.com/askiada/go-etl/pkg/source"
	"github.com/askiada/go-etl/pkg/stream"
)

const defaultTaxField = "tax"

var (
	ErrUnknownType = errors.New("unknown type")
	ErrSameFile    = errors.New("input and output are the same file")
)

// Options are the dependencies of a run.
type Options struct {
	Log zerolog.Logger
	// Stdout receives the records of the stdout sink. It defaults to os.Stdout.
	Stdout io.Writer
	// HTTPClient is used by the http source. It defaults to a client with the source timeout.
	HTTPClient *http.Client
	// GraphPath is the file the DOT graph of the run is written to. Empty disables it.
	GraphPath string
}

// Report is the outcome of a run.
type Report struct {
	stream.Summary
	// Quarantined is the number of records written to the quarantine file.
	Quarantined int
	// Bottlenecks is only set when the job is monitored, the slowest step first.
	Bottlenecks []bottleneck.Finding
}

// Rejection is the quarantine entry of a skipped record.
type Rejection struct {
	Step    string        `json:"step"`
	Payload record.Record `json:"payload"`
	Reasons []string      `json:"reasons"`
}

// NewSource returns the source described by cfg.
func NewSource(cfg config.Source, client *http.Client, log zerolog.Logger) (stream.Source[record.Record], error) {
	switch cfg.Type {
	case config.SourceLines:
		return source.Lines(source.File(cfg.Path)), nil
	case config.SourceJSONLines:
		return source.JSONLines(source.File(cfg.Path)), nil
	case config.SourceJSON:
		return source.JSONArray(source.File(cfg.Path)), nil
	case config.SourceCSV:
		return source.CSV(source.File(cfg.Path)), nil
	case config.SourceHTTP:
		if client == nil {
			client = &http.Client{Timeout: cfg.Timeout}
		}
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxAttempts = cfg.Retries
		if cfg.Backoff > 0 {
			retryCfg.InitialBackoff = cfg.Backoff
		}

		return source.HTTPJSON(client, cfg.URL, retryCfg, log), nil
	}

	return nil, errors.Wrapf(ErrUnknownType, "source %q", cfg.Type)
}

// NewSink returns the sink described by cfg.
func NewSink(cfg config.Sink, stdout io.Writer) (stream.Sink[record.Record], error) {
	switch cfg.Type {
	case config.SinkJSON:
		return sink.JSONFile[record.Record](cfg.Path), nil
	case config.SinkJSONLines:
		return sink.JSONLinesFile[record.Record](cfg.Path), nil
	case config.SinkLines:
		return sink.LinesFile(cfg.Path, cfg.Field), nil
	case config.SinkStdout:
		if stdout == nil {
			stdout = os.Stdout
		}

		return sink.JSONLines[record.Record](sink.Writer(stdout)), nil
	}

	return nil, errors.Wrapf(ErrUnknownType, "sink %q", cfg.Type)
}

// NewTransform returns the transform described by step.
func NewTransform(step config.Step) (stream.Transform[record.Record], error) {
	switch step.Type {
	case config.StepContains:
		return record.Contains(step.Field, cast.ToString(step.Value)), nil
	case config.StepEquals:
		return record.Equals(step.Field, step.Value), nil
	case config.StepGreaterThan:
		threshold, err := cast.ToFloat64E(step.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "step %s: threshold", step.Name)
		}

		return record.GreaterThan(step.Field, threshold), nil
	case config.StepUpper:
		return record.Upper(step.Field), nil
	case config.StepTrim:
		return record.Trim(step.Field), nil
	case config.StepTax:
		taxField := cast.ToString(step.Value)
		if taxField == "" {
			taxField = defaultTaxField
		}

		return record.Tax(step.Field, taxField, step.To, step.Rate), nil
	case config.StepRename:
		return record.Rename(step.Field, step.To), nil
	case config.StepDrop:
		return record.Drop(step.Field), nil
	case config.StepDefault:
		return record.Default(step.Field, step.Value), nil
	case config.StepContract:
		ctr, err := contract.New(step.Rules...)
		if err != nil {
			return nil, errors.Wrapf(err, "step %s", step.Name)
		}

		return ctr.Transform(), nil
	}

	return nil, errors.Wrapf(ErrUnknownType, "step %q", step.Type)
}

// reasons lists why a record was rejected, one entry per invalid field when
// the record broke a contract.
func reasons(err error) []string {
	var vErr *contract.ValidationError
	if errors.As(err, &vErr) {
		res := make([]string, 0, len(vErr.Fields))
		for _, field := range vErr.Fields {
			res = append(res, field.Field+": "+field.Message)
		}

		return res
	}

	return []string{err.Error()}
}

// quarantine writes the skipped records to a JSON lines file.
func quarantine(q *sink.Sink[Rejection], log zerolog.Logger) stream.DeadLetterFn[record.Record] {
	return func(ctx context.Context, recErr *stream.RecordError[record.Record]) {
		err := q.Write(ctx, Rejection{Step: recErr.Step, Payload: recErr.Record, Reasons: reasons(recErr.Err)})
		if err != nil {
			log.Error().Err(err).Str("step", recErr.Step).Msg("unable to quarantine record")
		}
	}
}

// Run runs job until its source is exhausted, the first error when the job halts on errors,
// or until ctx is done. The sink and the quarantine file are closed on every path.
func Run(ctx context.Context, job *config.Job, opts Options) (_ Report, err error) {
	log := opts.Log.With().Str("job", job.Name).Logger()

	src, err := NewSource(job.Source, opts.HTTPClient, log)
	if err != nil {
		return Report{}, err
	}

	snk, err := NewSink(job.Sink, opts.Stdout)
	if err != nil {
		return Report{}, err
	}

	policy, err := stream.ParseErrorPolicy(job.OnError)
	if err != nil {
		return Report{}, err
	}

	pOpts := []stream.Option[record.Record]{
		stream.WithErrorPolicy[record.Record](policy),
		stream.WithLogger[record.Record](log),
	}

	var analyzer *bottleneck.Analyzer
	if job.Monitor || opts.GraphPath != "" {
		msr := measure.NewDefaultMeasure()
		analyzer = bottleneck.New(msr)
		pOpts = append(pOpts, stream.WithMonitor[record.Record](msr), stream.WithObserver[record.Record](analyzer))
		if opts.GraphPath != "" {
			pOpts = append(pOpts, stream.WithObserver[record.Record](drawer.PipelineDrawer(drawer.NewDOTDrawer(opts.GraphPath), msr)))
		}
	}

	// the steps are checked before the quarantine file is truncated
	transforms := make([]stream.Transform[record.Record], len(job.Steps))
	for i, step := range job.Steps {
		transforms[i], err = NewTransform(step)
		if err != nil {
			return Report{}, err
		}
	}

	var q *sink.Sink[Rejection]
	if job.Quarantine.Path != "" {
		q = sink.JSONLinesFile[Rejection](job.Quarantine.Path)
		if err := q.Open(ctx); err != nil {
			return Report{}, errors.Wrap(err, "unable to open quarantine")
		}
		defer func() {
			cErr := q.Close()
			if cErr != nil && err == nil {
				err = errors.Wrap(cErr, "unable to close quarantine")
			}
		}()
		pOpts = append(pOpts, stream.WithDeadLetter(quarantine(q, log)))
	}

	p := stream.New(job.Name, src, pOpts...)
	for i, step := range job.Steps {
		p.ThenConcurrent(step.Name, step.Concurrency, transforms[i])
	}

	summary, err := p.Drain(ctx, snk)
	report := Report{Summary: summary}
	if q != nil {
		report.Quarantined = q.Written()
	}
	if err != nil {
		return report, err
	}

	if analyzer != nil {
		report.Bottlenecks, err = analyzer.Report()
		if err != nil {
			return report, errors.Wrap(err, "unable to analyse the run")
		}
	}

	return report, nil
}

// Grep copies the lines of in containing pattern to out, without their surrounding spaces.
func Grep(ctx context.Context, in, out, pattern string, log zerolog.Logger) (stream.Summary, error) {
	same, err := sameFile(in, out)
	if err != nil {
		return stream.Summary{}, err
	}
	if same {
		return stream.Summary{}, errors.Wrapf(ErrSameFile, "%s", out)
	}

	return stream.New("read", source.Lines(source.File(in)), stream.WithLogger[record.Record](log)).
		Then("trim", record.Trim("line")).
		Then("match", record.Contains("line", pattern)).
		Drain(ctx, sink.LinesFile(out, "line"))
}

// sameFile reports whether both paths name the same file. The output is opened before the input,
// so writing over the input would truncate it before it is read.
func sameFile(in, out string) (bool, error) {
	absIn, err := filepath.Abs(in)
	if err != nil {
		return false, errors.Wrapf(err, "unable to resolve %s", in)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return false, errors.Wrapf(err, "unable to resolve %s", out)
	}
	if absIn == absOut {
		return true, nil
	}

	// a missing input is reported when the source opens
	inInfo, inErr := os.Stat(in)
	outInfo, outErr := os.Stat(out)
	if inErr != nil || outErr != nil {
		return false, nil
	}

	return os.SameFile(inInfo, outInfo), nil
}
