package pipeline_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/go-etl/pkg/pipeline"
	"github.com/askiada/go-etl/pkg/pipeline/model"
)

func addIntRoot(t *testing.T, pipe *pipeline.Pipeline, name string, total int, opts ...pipeline.StepOption[int]) *model.Step[int] {
	t.Helper()

	rootStep, err := pipeline.AddRootStep(pipe, name, func(ctx context.Context, rootChan chan<- int) error {
		for i := range total {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case rootChan <- i:
			}
		}

		return nil
	}, opts...)
	require.NoError(t, err)

	return rootStep
}

type collector[T any] struct {
	mu  sync.Mutex
	got []T
}

func (c *collector[T]) values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]T(nil), c.got...)
}

func addCollector[T any](t *testing.T, pipe *pipeline.Pipeline, name string, input *model.Step[T]) *collector[T] {
	t.Helper()

	res := &collector[T]{}
	err := pipeline.AddSink(pipe, name, input, func(_ context.Context, elem T) error {
		res.mu.Lock()
		defer res.mu.Unlock()
		res.got = append(res.got, elem)

		return nil
	})
	require.NoError(t, err)

	return res
}
