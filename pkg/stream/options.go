package stream

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/askiada/go-etl/pkg/pipeline/measure"
	"github.com/askiada/go-etl/pkg/pipeline/model"
)

// Option configures a Pipeline.
type Option[R any] func(p *Pipeline[R])

// DeadLetterFn receives the records dropped by the Skip policy.
// It can be called from several steps at once.
type DeadLetterFn[R any] func(ctx context.Context, recErr *RecordError[R])

// WithErrorPolicy sets the transform failure policy. The default is Halt.
func WithErrorPolicy[R any](policy ErrorPolicy) Option[R] {
	return func(p *Pipeline[R]) {
		p.policy = policy
	}
}

// WithDeadLetter sets the function called for every record skipped by the Skip policy.
func WithDeadLetter[R any](fn DeadLetterFn[R]) Option[R] {
	return func(p *Pipeline[R]) {
		p.deadLetter = fn
	}
}

// WithMonitor records the start time, end time, counts and durations of every step in msr.
// Monitoring never changes the records. Runs sharing msr add up their figures.
func WithMonitor[R any](msr measure.Measure) Option[R] {
	return func(p *Pipeline[R]) {
		p.monitor = msr
	}
}

// WithLogger logs the run and the lifecycle of every step.
func WithLogger[R any](log zerolog.Logger) Option[R] {
	return func(p *Pipeline[R]) {
		p.log = log
		p.logged = true
	}
}

// WithObserver registers any other pipeline option, a drawer for instance.
// Observers run after the monitor so its metrics are complete when they finish.
func WithObserver[R any](opt model.PipelineOption) Option[R] {
	return func(p *Pipeline[R]) {
		p.observers = append(p.observers, opt)
	}
}
