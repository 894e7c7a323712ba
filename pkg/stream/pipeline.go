package stream

import (
	"context"
	"io"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/go-etl/pkg/pipeline"
	"github.com/askiada/go-etl/pkg/pipeline/logging"
	"github.com/askiada/go-etl/pkg/pipeline/measure"
	"github.com/askiada/go-etl/pkg/pipeline/model"
)

// SinkStepName is the name of the step writing to the sink in Drain.
const SinkStepName = "sink"

var ErrDuplicateStep = errors.New("duplicate step name")

type step[R any] struct {
	name        string
	transform   Transform[R]
	concurrency int
}

// Pipeline reads records from a source and passes each of them through its transforms, in order.
// A Pipeline is a template: every Stream, Drain or Collect is a new run that opens the source again.
type Pipeline[R any] struct {
	name       string
	source     Source[R]
	steps      []step[R]
	policy     ErrorPolicy
	deadLetter DeadLetterFn[R]
	monitor    measure.Measure
	log        zerolog.Logger
	logged     bool
	observers  []model.PipelineOption
}

// New creates a pipeline reading from src. name is also the name of the source step.
func New[R any](name string, src Source[R], opts ...Option[R]) *Pipeline[R] {
	p := &Pipeline[R]{
		name:   name,
		source: src,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Then appends a transform. Transforms run in the order they are added.
func (p *Pipeline[R]) Then(name string, transform Transform[R]) *Pipeline[R] {
	p.steps = append(p.steps, step[R]{name: name, transform: transform})

	return p
}

// ThenConcurrent appends a transform run by up to concurrency goroutines.
// Records may leave the step in a different order than they entered it.
// A concurrency below 2 is the same as Then.
func (p *Pipeline[R]) ThenConcurrent(name string, concurrency int, transform Transform[R]) *Pipeline[R] {
	p.steps = append(p.steps, step[R]{name: name, transform: transform, concurrency: concurrency})

	return p
}

// Name returns the name of the pipeline.
func (p *Pipeline[R]) Name() string {
	return p.name
}

func (p *Pipeline[R]) validate(reserved ...string) error {
	if p.source == nil {
		return ErrSourceMustBeSet
	}

	seen := map[string]struct{}{p.name: {}}
	for _, name := range reserved {
		seen[name] = struct{}{}
	}

	for _, st := range p.steps {
		if _, ok := seen[st.name]; ok {
			return errors.Wrapf(ErrDuplicateStep, "%q", st.name)
		}
		seen[st.name] = struct{}{}
	}

	return nil
}

// run holds the state of a single execution of a pipeline.
type run[R any] struct {
	p         *Pipeline[R]
	id        uuid.UUID
	log       zerolog.Logger
	pipe      *pipeline.Pipeline
	output    *model.Step[R]
	startedAt time.Time
	endedAt   time.Time
	read      atomic.Int64
	emitted   atomic.Int64
	filtered  atomic.Int64
	skipped   atomic.Int64
}

func (p *Pipeline[R]) newRun(ctx context.Context) (*run[R], error) {
	r := &run[R]{
		p:         p,
		id:        uuid.New(),
		startedAt: time.Now(),
	}
	r.log = p.log.With().Str("pipeline", p.name).Str("run_id", r.id.String()).Logger()

	opts := []model.PipelineOption{}
	if p.monitor != nil {
		opts = append(opts, measure.PipelineMeasure(p.monitor))
	}
	if p.logged {
		opts = append(opts, logging.PipelineLogger(r.log))
	}
	opts = append(opts, p.observers...)

	pipe, err := pipeline.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}

	output, err := pipeline.AddRootStep(pipe, p.name, r.readSource)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to add source %s", p.name)
	}

	var stepOpts []pipeline.StepOption[R]
	if p.policy == Skip {
		stepOpts = append(stepOpts, pipeline.StepErrorHandler[R](r.skipRecord))
	}

	for _, st := range p.steps {
		stOpts := stepOpts
		if st.concurrency > 1 {
			stOpts = append(slices.Clone(stepOpts), pipeline.StepConcurrency[R](st.concurrency))
		}
		output, err = pipeline.AddStepFilterMap(pipe, st.name, output, r.transform(st), stOpts...)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add step %s", st.name)
		}
	}

	r.pipe = pipe
	r.output = output

	return r, nil
}

// readSource owns the source reader for the whole run. The reader is closed once,
// when the source is exhausted or as soon as the run is cancelled.
func (r *run[R]) readSource(ctx context.Context, rootChan chan<- R) (err error) {
	reader, err := r.p.source.Open(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to open source %s", r.p.name)
	}
	defer func() {
		cErr := reader.Close()
		if cErr != nil && err == nil {
			err = errors.Wrapf(cErr, "unable to close source %s", r.p.name)
		}
	}()

	for {
		rec, rErr := reader.Read(ctx)
		if errors.Is(rErr, io.EOF) {
			return nil
		}
		if rErr != nil {
			return errors.Wrapf(rErr, "unable to read source %s", r.p.name)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case rootChan <- rec:
			r.read.Add(1)
		}
	}
}

func (r *run[R]) transform(st step[R]) func(context.Context, R) (R, bool, error) {
	return func(ctx context.Context, rec R) (R, bool, error) {
		out, keep, err := st.transform(ctx, rec)
		if err != nil {
			return out, false, &RecordError[R]{Step: st.name, Record: rec, Err: err}
		}
		if !keep {
			r.filtered.Add(1)
		}

		return out, keep, nil
	}
}

// skipRecord drops records failing a transform. Cancellation always stops the run.
func (r *run[R]) skipRecord(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var recErr *RecordError[R]
	if !errors.As(err, &recErr) {
		return err
	}

	r.skipped.Add(1)
	if r.p.deadLetter != nil {
		r.p.deadLetter(ctx, recErr)
	}

	return nil
}

func (r *run[R]) start() {
	r.startedAt = time.Now()
	r.log.Info().Str("policy", r.p.policy.String()).Int("steps", len(r.p.steps)).Msg("run started")
}

func (r *run[R]) finish(err error) Summary {
	r.endedAt = time.Now()
	summary := r.summary()

	event := r.log.Info()
	if err != nil {
		event = r.log.Error().Err(err)
	}
	event.
		Int64("read", summary.Read).
		Int64("emitted", summary.Emitted).
		Int64("filtered", summary.Filtered).
		Int64("skipped", summary.Skipped).
		Dur("duration", summary.Duration()).
		Msg("run finished")

	return summary
}

func (r *run[R]) summary() Summary {
	res := Summary{
		RunID:     r.id,
		StartedAt: r.startedAt,
		EndedAt:   r.endedAt,
		Read:      r.read.Load(),
		Emitted:   r.emitted.Load(),
		Filtered:  r.filtered.Load(),
		Skipped:   r.skipped.Load(),
	}

	if r.p.monitor == nil {
		return res
	}

	sourceStats := stepStats(r.p.monitor, r.p.name)
	sourceStats.Emitted = res.Read
	res.Steps = append(res.Steps, sourceStats)

	for _, st := range r.p.steps {
		res.Steps = append(res.Steps, stepStats(r.p.monitor, st.name))
	}

	return res
}

// Stream returns a lazy stream of the transformed records. Nothing runs until it is iterated.
func (p *Pipeline[R]) Stream(ctx context.Context) *Stream[R] {
	return &Stream[R]{ctx: ctx, p: p}
}

// Drain writes every transformed record to sink. The sink is opened before the source
// and closed once, whatever the outcome of the run.
func (p *Pipeline[R]) Drain(ctx context.Context, sink Sink[R]) (_ Summary, err error) {
	err = p.validate(SinkStepName)
	if err != nil {
		return Summary{}, err
	}

	err = sink.Open(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "unable to open sink")
	}
	defer func() {
		cErr := sink.Close()
		if cErr != nil && err == nil {
			err = errors.Wrap(cErr, "unable to close sink")
		}
	}()

	r, err := p.newRun(ctx)
	if err != nil {
		return Summary{}, err
	}

	err = pipeline.AddSink(r.pipe, SinkStepName, r.output, func(ctx context.Context, rec R) error {
		wErr := sink.Write(ctx, rec)
		if wErr != nil {
			return errors.Wrap(wErr, "unable to write record")
		}
		r.emitted.Add(1)

		return nil
	})
	if err != nil {
		return Summary{}, errors.Wrap(err, "unable to add sink")
	}

	r.start()
	err = r.pipe.Run()

	return r.finish(err), err
}

// Collect runs the pipeline and returns all the transformed records.
func (p *Pipeline[R]) Collect(ctx context.Context) ([]R, error) {
	st := p.Stream(ctx)

	res := []R{}
	for rec := range st.All() {
		res = append(res, rec)
	}

	return res, st.Err()
}
