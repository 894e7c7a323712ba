package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

func prepareRootStep[O any](pipe *Pipeline, step *model.Step[O], opts ...StepOption[O]) error {
	for _, opt := range opts {
		opt(step)
	}
	step.Output = make(chan O, step.Details.BufferSize)

	for _, opt := range pipe.opts {
		err := opt.PrepareStep(model.StartStep.Details, step.Details)
		if err != nil {
			return errors.Wrap(err, "unable to run prepare step function")
		}
	}

	return nil
}

// AddRootStep adds a step feeding the pipeline. stepFn owns the output channel until it returns,
// and should stop sending as soon as ctx is done.
func AddRootStep[O any](pipe *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption[O]) (*model.Step[O], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}

	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.RootStepType,
			Name:       name,
			Concurrent: 1,
		},
	}
	err := prepareRootStep(pipe, step, opts...)
	if err != nil {
		return nil, err
	}

	errC := make(chan error, 2)
	pipe.goStep(name, errC, func(ctx context.Context) {
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
		err := stepFn(ctx, step.Output)
		if err != nil {
			errC <- err
		}
	})

	return step, nil
}
