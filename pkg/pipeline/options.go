package pipeline

import (
	"github.com/askiada/go-etl/pkg/pipeline/model"
)

type StepOption[O any] func(s *model.Step[O])

// StepConcurrency sets the number of goroutines consuming the input of the step.
// The order of the elements is not preserved when concurrent > 1.
func StepConcurrency[O any](concurrent int) StepOption[O] {
	return func(s *model.Step[O]) {
		s.Details.Concurrent = concurrent
	}
}

// StepBufferSize sets the capacity of the output channel of the step.
func StepBufferSize[O any](bufferSize int) StepOption[O] {
	return func(s *model.Step[O]) {
		s.Details.BufferSize = bufferSize
	}
}

// StepKeepOpen leaves the output channel open once the step is done.
func StepKeepOpen[O any]() StepOption[O] {
	return func(s *model.Step[O]) {
		s.KeepOpen = true
	}
}

// StepErrorHandler sets the function called when the step function fails.
// Without handler, the first error stops the pipeline.
func StepErrorHandler[O any](handler model.ErrorHandler) StepOption[O] {
	return func(s *model.Step[O]) {
		s.OnError = handler
	}
}

type SplitterOption[I any] func(s *Splitter[I])

func SplitterBufferSize[I any](bufferSize int) SplitterOption[I] {
	return func(s *Splitter[I]) {
		s.bufferSize = bufferSize
	}
}
