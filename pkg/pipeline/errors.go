package pipeline

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrPipelineMustBeSet  = errors.New("pipeline must be set")
	ErrInputMustBeSet     = errors.New("input must be set")
	ErrSplitterTotal      = errors.New("total must be greater than 0")
	ErrPipelineAlreadyRun = errors.New("pipeline already run")
)

// stepErrors is the error channel of one step. A nil channel never reports anything.
type stepErrors struct {
	step string
	errc <-chan error
}

// errorRegistry collects the error channels of the steps added to a pipeline.
type errorRegistry struct {
	mu      sync.Mutex
	sources []stepErrors
}

func (reg *errorRegistry) register(step string, errc <-chan error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.sources = append(reg.sources, stepErrors{step: step, errc: errc})
}

func (reg *errorRegistry) all() []stepErrors {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return slices.Clone(reg.sources)
}

// fanInErrors forwards the errors of every source to a single channel, prefixed with the step name.
// The returned channel is closed once every source is closed.
func fanInErrors(sources ...stepErrors) <-chan error {
	// one slot per source, a forwarder only waits when its step reports more than one error
	merged := make(chan error, len(sources))

	var wg sync.WaitGroup
	for _, src := range sources {
		if src.errc == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for err := range src.errc {
				merged <- errors.Wrap(err, src.step)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	return merged
}
