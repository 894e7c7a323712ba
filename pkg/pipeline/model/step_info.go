package model

import "context"

type stepType string

const (
	RootStepType     stepType = "root"
	NormalStepType   stepType = "step"
	SplitterStepType stepType = "splitter"
	SinkStepType     stepType = "sink"
	MergerStepType   stepType = "merger"
)

// StepInfo describes a step to the pipeline options.
type StepInfo struct {
	Type       stepType
	Name       string
	Concurrent int
	BufferSize int
}

var (
	StartStep = &Step[any]{Details: &StepInfo{Name: "start"}}
	EndStep   = &Step[any]{Details: &StepInfo{Name: "end"}}
)

// ErrorHandler decides what happens when a step function fails on an element.
// Returning nil drops the element and lets the step carry on, returning an error stops the pipeline.
type ErrorHandler func(ctx context.Context, err error) error

// Step is the output of a step, consumed by the next ones.
type Step[O any] struct {
	Output   chan O
	KeepOpen bool
	Details  *StepInfo
	OnError  ErrorHandler
}

// Info returns the step details, never nil.
func (s *Step[O]) Info() *StepInfo {
	if s == nil || s.Details == nil {
		return &StepInfo{}
	}

	return s.Details
}
