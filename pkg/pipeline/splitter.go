package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

// Splitter copies its input to many outputs.
type Splitter[I any] struct {
	mu            sync.Mutex
	currIdx       int
	mainStep      *model.Step[I]
	splittedSteps []*model.Step[I]
	bufferSize    int
	Total         int
}

// Get returns the next unused output of the splitter.
func (s *Splitter[I]) Get() (*model.Step[I], bool) {
	s.mu.Lock()
	defer func() {
		s.currIdx++
		s.mu.Unlock()
	}()
	if s.currIdx >= len(s.splittedSteps) {
		return nil, false
	}

	return s.splittedSteps[s.currIdx], true
}

// SplitterFn decides if an element goes to the output at the same index.
type SplitterFn[I any] func(input I) (bool, error)

func prepareSplitter[I any](pipe *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}
	if total <= 0 {
		return nil, ErrSplitterTotal
	}

	splitter := &Splitter[I]{
		Total: total,
		mainStep: &model.Step[I]{
			Details: &model.StepInfo{
				Type:       model.SplitterStepType,
				Name:       name,
				Concurrent: 1,
			},
		},
	}
	for _, opt := range opts {
		opt(splitter)
	}
	if splitter.bufferSize <= 0 {
		splitter.bufferSize = 1
	}
	splitter.mainStep.Details.BufferSize = splitter.bufferSize

	splitter.splittedSteps = make([]*model.Step[I], total)
	for i := range total {
		splitter.splittedSteps[i] = &model.Step[I]{
			Details: splitter.mainStep.Details,
			Output:  make(chan I),
		}
	}

	for _, opt := range pipe.opts {
		err := opt.PrepareSplitter(input.Info(), splitter.mainStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare splitter function")
		}
	}

	return splitter, nil
}

func runSplitterOutput[I any](ctx context.Context, idx int, buf <-chan I, output *model.Step[I], fns []SplitterFn[I]) error {
	defer close(output.Output)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case elem, ok := <-buf:
			if !ok {
				return nil
			}
			if fns != nil {
				keep, err := fns[idx](elem)
				if err != nil {
					return errors.Wrapf(err, "unable to run splitter function %d", idx)
				}
				if !keep {
					continue
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case output.Output <- elem:
			}
		}
	}
}

func runSplitterInput[I any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], splitter *Splitter[I], buffers []chan I) error {
	defer func() {
		for _, buf := range buffers {
			close(buf)
		}
	}()

	parent := input.Info()
	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-input.Output:
			if !ok {
				return nil
			}
			startFn := time.Now()
			for _, buf := range buffers {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case buf <- entry:
				}
			}
			endFn := time.Since(startFn)
			endIter := time.Since(startIter) - endFn

			for _, opt := range opts {
				err := opt.OnSplitterOutput(parent, splitter.mainStep.Details, endIter, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run on splitter output function")
				}
			}
		}
	}
}

func runSplitter[I any](ctx context.Context, opts []model.PipelineOption, input *model.Step[I], splitter *Splitter[I], fns []SplitterFn[I]) error {
	errGrp, dCtx := errgroup.WithContext(ctx)

	buffers := make([]chan I, splitter.Total)
	for i := range buffers {
		buffers[i] = make(chan I, splitter.bufferSize)
		errGrp.Go(func() error {
			return runSplitterOutput(dCtx, i, buffers[i], splitter.splittedSteps[i], fns)
		})
	}

	errGrp.Go(func() error {
		return runSplitterInput(dCtx, opts, input, splitter, buffers)
	})

	return errGrp.Wait()
}

func addSplitter[I any](pipe *Pipeline, input *model.Step[I], splitter *Splitter[I], fns []SplitterFn[I]) *Splitter[I] {
	errC := make(chan error, 2)
	pipe.goStep(splitter.mainStep.Details.Name, errC, func(ctx context.Context) {
		startedAt := time.Now()
		defer func() {
			err := afterStep(pipe.opts, splitter.mainStep.Details, startedAt)
			if err != nil {
				errC <- err
			}
			close(errC)
		}()
		err := runSplitter(ctx, pipe.opts, input, splitter, fns)
		if err != nil {
			errC <- err
		}
	})

	return splitter
}

// AddSplitter adds a step sending every input to total outputs.
func AddSplitter[I any](pipe *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	splitter, err := prepareSplitter(pipe, name, input, total, opts...)
	if err != nil {
		return nil, err
	}

	return addSplitter(pipe, input, splitter, nil), nil
}

// AddSplitterFn adds a step with one output per function. An input is sent to an output
// only when the function at the same index accepts it.
func AddSplitterFn[I any](pipe *Pipeline, name string, input *model.Step[I], fns []SplitterFn[I], opts ...SplitterOption[I]) (*Splitter[I], error) {
	splitter, err := prepareSplitter(pipe, name, input, len(fns), opts...)
	if err != nil {
		return nil, err
	}

	return addSplitter(pipe, input, splitter, fns), nil
}
