package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

func prepareMerger[I any](pipe *Pipeline, output chan I, name string, steps ...*model.Step[I]) (*model.Step[I], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}
	if len(steps) == 0 {
		return nil, ErrInputMustBeSet
	}

	outputStep := &model.Step[I]{
		Details: &model.StepInfo{
			Type:       model.MergerStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: output,
	}

	stepInfos := make([]*model.StepInfo, len(steps))
	for i, step := range steps {
		if step == nil {
			return nil, ErrInputMustBeSet
		}
		stepInfos[i] = step.Info()
	}

	for _, opt := range pipe.opts {
		err := opt.PrepareMerger(stepInfos, outputStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare merger function")
		}
	}

	return outputStep, nil
}

func runStepMerger[I any](ctx context.Context, opts []model.PipelineOption, step, outputStep *model.Step[I]) error {
	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-step.Output:
			if !ok {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case outputStep.Output <- entry:
				endIter := time.Since(startIter)
				for _, opt := range opts {
					err := opt.OnMergerOutput(step.Info(), outputStep.Details, endIter)
					if err != nil {
						return errors.Wrap(err, "unable to run on merger output function")
					}
				}
			}
		}
	}
}

// AddMerger adds a merger step to the pipeline. It will merge the output of the steps into a single channel.
// Each input step is read in a separate goroutine, so the order of the elements is not preserved.
func AddMerger[I any](pipe *Pipeline, name string, steps ...*model.Step[I]) (*model.Step[I], error) {
	output := make(chan I)

	outputStep, err := prepareMerger(pipe, output, name, steps...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to prepare merger")
	}

	errC := make(chan error, len(steps))
	wgrp := sync.WaitGroup{}
	wgrp.Add(len(steps))

	for i, step := range steps {
		fn := func(ctx context.Context) {
			defer wgrp.Done()
			err := runStepMerger(ctx, pipe.opts, step, outputStep)
			if err != nil {
				errC <- err
			}
		}
		if i == 0 {
			pipe.goStep(name, errC, fn)

			continue
		}
		pipe.goFn = append(pipe.goFn, fn)
	}

	// the output is closed once every input has been consumed
	pipe.goFn = append(pipe.goFn, func(context.Context) {
		wgrp.Wait()
		close(errC)
		close(output)
	})

	return outputStep, nil
}
