package pipeline

import (
	"context"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

// stepFn turns one input into zero, one or many outputs.
type stepFn[I any, O any] func(ctx context.Context, input I) ([]O, error)

func notifyOutput(opts []model.PipelineOption, parent, step *model.StepInfo, iterationDuration, computationDuration time.Duration) error {
	for _, opt := range opts {
		err := opt.OnStepOutput(parent, step, iterationDuration, computationDuration)
		if err != nil {
			return errors.Wrap(err, "unable to run on step output function")
		}
	}

	return nil
}

func notifyDrop(opts []model.PipelineOption, parent, step *model.StepInfo, cause error) error {
	for _, opt := range opts {
		err := opt.OnStepDrop(parent, step, cause)
		if err != nil {
			return errors.Wrap(err, "unable to run on step drop function")
		}
	}

	return nil
}

// handleStepError either drops the input, when the step error handler accepts the error,
// or returns the error that must stop the pipeline.
func handleStepError[O any](ctx context.Context, opts []model.PipelineOption, parent *model.StepInfo, output *model.Step[O], err error) error {
	if output.OnError == nil {
		return err
	}

	hErr := output.OnError(ctx, err)
	if hErr != nil {
		return hErr
	}

	return notifyDrop(opts, parent, output.Info(), err)
}

func sequentialFn[I any, O any](ctx context.Context, goIdx int, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O], fn stepFn[I, O]) error {
	parent, details := input.Info(), output.Info()
outer:
	for {
		start := time.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		case in, ok := <-input.Output:
			if !ok {
				break outer
			}
			startFn := time.Now()
			outs, err := fn(ctx, in)
			endFn := time.Since(startFn)
			if err != nil {
				err = handleStepError(ctx, opts, parent, output, err)
				if err != nil {
					return errors.Wrapf(err, "go routine %d", goIdx)
				}

				continue
			}

			if len(outs) == 0 {
				err = notifyDrop(opts, parent, details, nil)
				if err != nil {
					return errors.Wrapf(err, "go routine %d", goIdx)
				}

				continue
			}

			for _, out := range outs {
				// we check the context again to make sure all go routines currently running
				// stop to add new elements to the pipeline
				select {
				case <-ctx.Done():
					return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
				case output.Output <- out:
					err = notifyOutput(opts, parent, details, time.Since(start)-endFn, endFn)
					if err != nil {
						return errors.Wrapf(err, "go routine %d", goIdx)
					}
				}
			}
		}
	}

	return nil
}

func concurrentFn[I any, O any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O], fn stepFn[I, O]) error {
	concurrent := output.Details.Concurrent
	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(concurrent)
	// starts many consumers concurrently
	// each consumer stops as soon as an error happens
	for goIdx := range concurrent {
		errGrp.Go(func() error {
			return sequentialFn(dCtx, goIdx, opts, input, output, fn)
		})
	}

	return errGrp.Wait()
}

func runStep[I any, O any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O], fn stepFn[I, O]) error {
	if output.Details == nil {
		output.Details = &model.StepInfo{}
	}
	if output.Details.Concurrent <= 0 {
		output.Details.Concurrent = 1
	}
	if output.Details.Concurrent == 1 {
		return sequentialFn(ctx, 1, opts, input, output, fn)
	}

	return concurrentFn(ctx, opts, input, output, fn)
}

func runOneToOne[I any, O any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	return runStep(ctx, opts, input, output, func(ctx context.Context, in I) ([]O, error) {
		out, err := oneToOneFn(ctx, in)
		if err != nil {
			return nil, err
		}

		return []O{out}, nil
	})
}

func runFilterMap[I any, O any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O], filterMapFn func(context.Context, I) (O, bool, error)) error {
	return runStep(ctx, opts, input, output, func(ctx context.Context, in I) ([]O, error) {
		out, keep, err := filterMapFn(ctx, in)
		if err != nil || !keep {
			return nil, err
		}

		return []O{out}, nil
	})
}

func isZero[O any](out O) bool {
	return reflect.ValueOf(&out).Elem().IsZero()
}

func runOneToOneOrZero[I any, O any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	return runFilterMap(ctx, opts, input, output, func(ctx context.Context, in I) (O, bool, error) {
		out, err := oneToOneFn(ctx, in)
		if err != nil {
			return out, false, err
		}

		return out, !isZero(out), nil
	})
}

func runOneToMany[I any, O any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O], oneToManyFn func(context.Context, I) ([]O, error)) error {
	return runStep(ctx, opts, input, output, oneToManyFn)
}

func prepareStep[I, O any](pipe *Pipeline, name string, input *model.Step[I], opts ...StepOption[O]) (*model.Step[O], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.NormalStepType,
			Name:       name,
			Concurrent: 1,
		},
	}
	for _, opt := range opts {
		opt(step)
	}
	step.Output = make(chan O, step.Details.BufferSize)

	for _, opt := range pipe.opts {
		err := opt.PrepareStep(input.Info(), step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare step function")
		}
	}

	return step, nil
}

func afterStep(opts []model.PipelineOption, step *model.StepInfo, startedAt time.Time) error {
	endedAt := time.Now()
	for _, opt := range opts {
		err := opt.AfterStep(step, startedAt, endedAt)
		if err != nil {
			return errors.Wrap(err, "unable to run after step function")
		}
	}

	return nil
}

func addStep[I any, O any](pipe *Pipeline, input *model.Step[I], step *model.Step[O], stepToStepFn func(ctx context.Context, opts []model.PipelineOption, input *model.Step[I], output *model.Step[O]) error) *model.Step[O] {
	// the step can report its own error and an error from the after step hooks.
	errC := make(chan error, 2)

	pipe.goStep(step.Details.Name, errC, func(ctx context.Context) {
		startedAt := time.Now()
		defer func() {
			if !step.KeepOpen {
				close(step.Output)
			}
			err := afterStep(pipe.opts, step.Details, startedAt)
			if err != nil {
				errC <- err
			}
			close(errC)
		}()
		err := stepToStepFn(ctx, pipe.opts, input, step)
		if err != nil {
			errC <- err
		}
	})

	return step
}

// AddStepOneToOne adds a step producing exactly one output for each input.
func AddStepOneToOne[I any, O any](pipe *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(pipe, name, input, opts...)
	if err != nil {
		return nil, err
	}

	return addStep(pipe, input, step, func(ctx context.Context, pOpts []model.PipelineOption, in *model.Step[I], out *model.Step[O]) error {
		return runOneToOne(ctx, pOpts, in, out, oneToOneFn)
	}), nil
}

// AddStepOneToOneOrZero adds a step producing at most one output for each input.
// Zero values returned by oneToOneFn are not sent to the output.
func AddStepOneToOneOrZero[I any, O any](pipe *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(pipe, name, input, opts...)
	if err != nil {
		return nil, err
	}

	return addStep(pipe, input, step, func(ctx context.Context, pOpts []model.PipelineOption, in *model.Step[I], out *model.Step[O]) error {
		return runOneToOneOrZero(ctx, pOpts, in, out, oneToOneFn)
	}), nil
}

// AddStepFilterMap adds a step that maps each input, and only keeps the outputs flagged by filterMapFn.
func AddStepFilterMap[I any, O any](pipe *Pipeline, name string, input *model.Step[I], filterMapFn func(context.Context, I) (O, bool, error), opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(pipe, name, input, opts...)
	if err != nil {
		return nil, err
	}

	return addStep(pipe, input, step, func(ctx context.Context, pOpts []model.PipelineOption, in *model.Step[I], out *model.Step[O]) error {
		return runFilterMap(ctx, pOpts, in, out, filterMapFn)
	}), nil
}

// AddStepOneToMany adds a step producing any number of outputs for each input.
func AddStepOneToMany[I any, O any](pipe *Pipeline, name string, input *model.Step[I], oneToManyFn func(context.Context, I) ([]O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(pipe, name, input, opts...)
	if err != nil {
		return nil, err
	}

	return addStep(pipe, input, step, func(ctx context.Context, pOpts []model.PipelineOption, in *model.Step[I], out *model.Step[O]) error {
		return runOneToMany(ctx, pOpts, in, out, oneToManyFn)
	}), nil
}
