package stream

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Stream is a single use sequence of transformed records.
type Stream[R any] struct {
	ctx      context.Context
	p        *Pipeline[R]
	consumed atomic.Bool

	mu      sync.Mutex
	err     error
	summary Summary
}

// All returns the records. The source is opened when the iteration starts.
// Breaking out of the loop cancels the run and releases the source.
// Only the first iteration yields records: the next ones yield nothing and Err
// reports ErrStreamConsumed.
func (s *Stream[R]) All() iter.Seq[R] {
	return func(yield func(R) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			s.setResult(ErrStreamConsumed, s.Summary())

			return
		}

		summary, err := s.run(yield)
		s.setResult(err, summary)
	}
}

func (s *Stream[R]) run(yield func(R) bool) (Summary, error) {
	err := s.p.validate()
	if err != nil {
		return Summary{}, err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	r, err := s.p.newRun(ctx)
	if err != nil {
		return Summary{}, err
	}

	r.start()

	done := make(chan error, 1)
	go func() {
		done <- r.pipe.Run()
	}()

	stopped := false
	for rec := range r.output.Output {
		r.emitted.Add(1)
		if !yield(rec) {
			stopped = true

			cancel()

			break
		}
	}

	err = <-done
	if stopped && errors.Is(err, context.Canceled) {
		r.log.Debug().Msg("stream stopped by the consumer")

		err = nil
	}

	return r.finish(err), err
}

func (s *Stream[R]) setResult(err error, summary Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
	s.summary = summary
}

// Err returns the error that stopped the run, if any. It is only meaningful once the iteration is over.
func (s *Stream[R]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Summary returns the figures of the run. It is only meaningful once the iteration is over.
func (s *Stream[R]) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.summary
}
