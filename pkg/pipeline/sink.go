package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

func prepareSink[I any](pipe *Pipeline, name string, input *model.Step[I], opts ...StepOption[I]) (*model.Step[I], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	step := &model.Step[I]{
		Details: &model.StepInfo{
			Type:       model.SinkStepType,
			Name:       name,
			Concurrent: 1,
		},
	}
	for _, opt := range opts {
		opt(step)
	}

	for _, opt := range pipe.opts {
		err := opt.PrepareSink(input.Info(), step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare sink function")
		}
	}

	return step, nil
}

func afterSink(opts []model.PipelineOption, step *model.StepInfo, startedAt time.Time) error {
	endedAt := time.Now()
	for _, opt := range opts {
		err := opt.AfterSink(step, startedAt, endedAt)
		if err != nil {
			return errors.Wrap(err, "unable to run after sink function")
		}
	}

	return nil
}

func runSink[I any](ctx context.Context, opts []model.PipelineOption, input, step *model.Step[I], sinkFn func(ctx context.Context, input I) error) error {
	parent := input.Info()
	for {
		startInputChan := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-input.Output:
			if !ok {
				return nil
			}
			endInputChan := time.Since(startInputChan)

			startFn := time.Now()
			err := sinkFn(ctx, in)
			endFn := time.Since(startFn)
			if err != nil {
				err = handleStepError(ctx, opts, parent, step, err)
				if err != nil {
					return err
				}

				continue
			}

			for _, opt := range opts {
				err := opt.OnSinkOutput(parent, step.Details, endInputChan, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run on sink output function")
				}
			}
		}
	}
}

// AddSink adds a final step calling sinkFn for each input.
func AddSink[I any](pipe *Pipeline, name string, input *model.Step[I], sinkFn func(ctx context.Context, input I) error, opts ...StepOption[I]) error {
	step, err := prepareSink(pipe, name, input, opts...)
	if err != nil {
		return err
	}

	errC := make(chan error, 2)
	pipe.goStep(name, errC, func(ctx context.Context) {
		startedAt := time.Now()
		defer func() {
			err := afterSink(pipe.opts, step.Details, startedAt)
			if err != nil {
				errC <- err
			}
			close(errC)
		}()
		err := runSink(ctx, pipe.opts, input, step, sinkFn)
		if err != nil {
			errC <- err
		}
	})

	return nil
}

// AddSinkFromChan adds a final step reading the input channel itself.
func AddSinkFromChan[I any](pipe *Pipeline, name string, input *model.Step[I], stepFn func(ctx context.Context, input <-chan I) error, opts ...StepOption[I]) error {
	step, err := prepareSink(pipe, name, input, opts...)
	if err != nil {
		return err
	}

	errC := make(chan error, 2)
	pipe.goStep(name, errC, func(ctx context.Context) {
		startedAt := time.Now()
		defer func() {
			err := afterSink(pipe.opts, step.Details, startedAt)
			if err != nil {
				errC <- err
			}
			close(errC)
		}()
		err := stepFn(ctx, input.Output)
		if err != nil {
			errC <- err
		}
	})

	return nil
}
