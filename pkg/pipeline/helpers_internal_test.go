package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

func createInputChan(t *testing.T, total int) chan int {
	t.Helper()

	inputChan := make(chan int)

	go func() {
		defer close(inputChan)

		for i := range total {
			inputChan <- i
		}
	}()

	return inputChan
}

func createInputChanWithCancel(t *testing.T, total int, offset int, cancel context.CancelFunc) chan int {
	t.Helper()

	inputChan := make(chan int)

	// the channel is left open once cancelled, the steps can only stop on the context.
	go func() {
		for i := range total {
			if i == offset {
				cancel()

				return
			}

			inputChan <- i
		}
		close(inputChan)
	}()

	return inputChan
}

func processOutputChan(t *testing.T, output <-chan int) []int {
	t.Helper()

	res := []int{}

	for out := range output {
		res = append(res, out)
	}

	return res
}

// hookRecorder counts the calls made to the step hooks.
type hookRecorder struct {
	mu       sync.Mutex
	outputs  int
	filtered int
	skipped  []error
}

func (h *hookRecorder) New() error { return nil }

func (h *hookRecorder) PrepareStep(_, _ *model.StepInfo) error { return nil }

func (h *hookRecorder) OnStepOutput(_, _ *model.StepInfo, _, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outputs++

	return nil
}

func (h *hookRecorder) OnStepDrop(_, _ *model.StepInfo, cause error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cause == nil {
		h.filtered++
	} else {
		h.skipped = append(h.skipped, cause)
	}

	return nil
}

func (h *hookRecorder) AfterStep(_ *model.StepInfo, _, _ time.Time) error { return nil }

func (h *hookRecorder) PrepareSplitter(_, _ *model.StepInfo) error { return nil }

func (h *hookRecorder) OnSplitterOutput(_, _ *model.StepInfo, _, _ time.Duration) error { return nil }

func (h *hookRecorder) PrepareMerger(_ []*model.StepInfo, _ *model.StepInfo) error { return nil }

func (h *hookRecorder) OnMergerOutput(_, _ *model.StepInfo, _ time.Duration) error { return nil }

func (h *hookRecorder) PrepareSink(_, _ *model.StepInfo) error { return nil }

func (h *hookRecorder) OnSinkOutput(_, _ *model.StepInfo, _, _ time.Duration) error { return nil }

func (h *hookRecorder) AfterSink(_ *model.StepInfo, _, _ time.Time) error { return nil }

func (h *hookRecorder) Finish() error { return nil }

var _ model.PipelineOption = (*hookRecorder)(nil)
