package stream

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrStreamConsumed  = errors.New("stream already consumed")
	ErrSourceMustBeSet = errors.New("source must be set")
	ErrUnknownPolicy   = errors.New("unknown error policy")
)

// ErrorPolicy decides what happens when a transform fails on a record.
type ErrorPolicy int

const (
	// Halt stops the run on the first failure. The failure is returned by Err.
	Halt ErrorPolicy = iota
	// Skip drops the failing record, reports it to the dead letter handler and carries on.
	Skip
)

func (p ErrorPolicy) String() string {
	switch p {
	case Halt:
		return "halt"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// ParseErrorPolicy parses "halt" or "skip". An empty string is Halt.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "halt":
		return Halt, nil
	case "skip":
		return Skip, nil
	default:
		return Halt, errors.Wrapf(ErrUnknownPolicy, "%q", s)
	}
}

// RecordError is returned when a transform fails on a record.
type RecordError[R any] struct {
	Step   string
	Record R
	Err    error
}

func (e *RecordError[R]) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *RecordError[R]) Unwrap() error {
	return e.Err
}
