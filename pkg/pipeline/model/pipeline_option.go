package model

import "time"

// PipelineOption observes a pipeline run through hooks called by the steps.
// An error from a Prepare hook fails the Add call, an error from the other hooks fails the step.
type PipelineOption interface {
	// New is called once, when the pipeline is created.
	New() error

	stepHooks
	splitterHooks
	mergerHooks
	sinkHooks

	// Finish is called once every step has returned.
	Finish() error
}

type stepHooks interface {
	// PrepareStep is called when step is added after parentStep.
	PrepareStep(parentStep, step *StepInfo) error
	// OnStepOutput is called for every element step sends downstream.
	// computationDuration is the time spent in the step function, iterationDuration the rest of the iteration.
	OnStepOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
	// OnStepDrop is called for every input that produced nothing.
	// cause is nil for a filtered element, and the step error for a skipped one.
	OnStepDrop(parentStep, step *StepInfo, cause error) error
	// AfterStep is called when step has consumed all its input.
	AfterStep(step *StepInfo, startedAt, endedAt time.Time) error
}

type splitterHooks interface {
	PrepareSplitter(parentStep, splitterStep *StepInfo) error
	// OnSplitterOutput is called for every element copied to the splitter outputs.
	OnSplitterOutput(parentStep, splitterStep *StepInfo, iterationDuration, computationDuration time.Duration) error
}

type mergerHooks interface {
	// PrepareMerger is called with every input of the merger.
	PrepareMerger(parentStep []*StepInfo, step *StepInfo) error
	OnMergerOutput(parentStep *StepInfo, outputStep *StepInfo, iterationDuration time.Duration) error
}

type sinkHooks interface {
	PrepareSink(parentStep, step *StepInfo) error
	// OnSinkOutput is called for every element the sink consumed.
	OnSinkOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
	// AfterSink is called when the sink input is closed.
	AfterSink(step *StepInfo, startedAt, endedAt time.Time) error
}
