package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDisk    = errors.New("disk full")
	errTimeout = errors.New("timeout")
)

func TestErrorRegistry(t *testing.T) {
	t.Parallel()

	reg := &errorRegistry{}
	first := make(chan error)
	second := make(chan error)
	done := make(chan struct{}, 2)

	go func() {
		reg.register("first", first)
		done <- struct{}{}
	}()
	go func() {
		reg.register("second", second)
		done <- struct{}{}
	}()
	<-done
	<-done

	sources := reg.all()
	assert.ElementsMatch(t, []stepErrors{
		{step: "first", errc: first},
		{step: "second", errc: second},
	}, sources)

	// all returns a copy
	sources[0].step = "changed"
	assert.NotEqual(t, "changed", reg.all()[0].step)
}

func TestFanInErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		sent     map[string][]error
		nilSteps []string
		want     []string
	}{
		"no sources": {},
		"only nil channels": {
			nilSteps: []string{"read", "write"},
		},
		"one nil channel": {
			sent:     map[string][]error{"write": {errDisk, errTimeout}},
			nilSteps: []string{"read"},
			want:     []string{"write: disk full", "write: timeout"},
		},
		"several steps": {
			sent: map[string][]error{"read": {errTimeout}, "write": {errDisk}},
			want: []string{"read: timeout", "write: disk full"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var sources []stepErrors
			for _, step := range tc.nilSteps {
				sources = append(sources, stepErrors{step: step})
			}
			for step, errs := range tc.sent {
				errc := make(chan error)
				sources = append(sources, stepErrors{step: step, errc: errc})
				go func() {
					defer close(errc)
					for _, err := range errs {
						errc <- err
					}
				}()
			}

			got := []string{}
			for err := range fanInErrors(sources...) {
				got = append(got, err.Error())
			}
			assert.ElementsMatch(t, tc.want, got)
		})
	}
}

func TestFanInErrorsKeepsCause(t *testing.T) {
	t.Parallel()

	errc := make(chan error, 1)
	errc <- errDisk
	close(errc)

	err := <-fanInErrors(stepErrors{step: "write", errc: errc})
	require.ErrorIs(t, err, errDisk)
}

func TestWaitForPipelineDrainsAfterFirstError(t *testing.T) {
	t.Parallel()

	chan1 := make(chan error, 1)
	chan2 := make(chan error, 1)
	cancelled := make(chan struct{})
	cancel := func() { close(cancelled) }

	go func() {
		defer close(chan1)
		chan1 <- assert.AnError
	}()

	closed2 := make(chan struct{})
	go func() {
		defer close(chan2)
		defer close(closed2)
		// the second step only stops once the pipeline is cancelled.
		<-cancelled
		chan2 <- context.Canceled
	}()

	err := waitForPipeline(cancel, stepErrors{step: "first", errc: chan1}, stepErrors{step: "second", errc: chan2})
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "first")

	select {
	case <-closed2:
	default:
		t.Fatal("waitForPipeline returned before every step was done")
	}
}

func TestWaitForPipelineNoError(t *testing.T) {
	t.Parallel()

	chan1 := make(chan error)
	close(chan1)

	err := waitForPipeline(func() { t.Fatal("cancel must not be called") }, stepErrors{step: "first", errc: chan1})
	require.NoError(t, err)
}
