package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

// Pipeline is a pipeline of steps.
type Pipeline struct {
	ctx       context.Context
	cancel    context.CancelFunc
	errs      *errorRegistry
	opts      []model.PipelineOption
	startTime time.Time
	goFn      []func(ctx context.Context)
	started   atomic.Bool
}

// New creates a new pipeline. Nothing runs before Run is called.
func New(ctx context.Context, opts ...model.PipelineOption) (*Pipeline, error) {
	dCtx, cancel := context.WithCancel(ctx)
	pipe := &Pipeline{
		ctx:       dCtx,
		cancel:    cancel,
		errs:      &errorRegistry{},
		startTime: time.Now(),
		opts:      opts,
	}

	for _, opt := range opts {
		err := opt.New()
		if err != nil {
			cancel()

			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

// waitForPipeline waits for results from all error channels.
// The first error cancels the pipeline, the other channels are still drained
// so every step has returned when it exits.
func waitForPipeline(cancel context.CancelFunc, sources ...stepErrors) error {
	var first error

	for err := range fanInErrors(sources...) {
		if err != nil && first == nil {
			first = err

			cancel()
		}
	}

	return first
}

// Run starts the pipeline and waits for all its steps to finish.
// A pipeline can only run once.
func (p *Pipeline) Run() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPipelineAlreadyRun
	}
	defer p.cancel()

	p.startTime = time.Now()

	for _, fn := range p.goFn {
		go fn(p.ctx)
	}

	err := waitForPipeline(p.cancel, p.errs.all()...)

	finishErr := p.finishRun()
	if err != nil {
		return err
	}

	return finishErr
}

// StartTime returns the time the pipeline started to run.
func (p *Pipeline) StartTime() time.Time {
	return p.startTime
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}

// goStep registers a function started by Run, and the channel it reports errors on.
func (p *Pipeline) goStep(name string, errC chan error, fn func(ctx context.Context)) {
	p.goFn = append(p.goFn, fn)
	p.errs.register(name, errC)
}
