package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/askiada/go-etl/pkg/pipeline/model"
)

type counters struct {
	emitted  atomic.Int64
	filtered atomic.Int64
	skipped  atomic.Int64
}

type pipelineLogger struct {
	log       zerolog.Logger
	startTime time.Time
	steps     sync.Map
}

func (pl *pipelineLogger) counters(name string) *counters {
	cnt, _ := pl.steps.LoadOrStore(name, &counters{})

	return cnt.(*counters) //nolint:forcetypeassert // only counters are stored
}

func (pl *pipelineLogger) New() error {
	pl.startTime = time.Now()
	pl.log.Debug().Msg("pipeline created")

	return nil
}

func (pl *pipelineLogger) prepare(kind string, parentStep, step *model.StepInfo) {
	pl.counters(step.Name)
	pl.log.Debug().
		Str("step", step.Name).
		Str("parent", parentStep.Name).
		Str("kind", kind).
		Int("concurrent", step.Concurrent).
		Msg("step prepared")
}

func (pl *pipelineLogger) PrepareStep(parentStep, step *model.StepInfo) error {
	pl.prepare("step", parentStep, step)

	return nil
}

func (pl *pipelineLogger) PrepareSplitter(parentStep, splitterStep *model.StepInfo) error {
	pl.prepare("splitter", parentStep, splitterStep)

	return nil
}

func (pl *pipelineLogger) PrepareMerger(parentSteps []*model.StepInfo, step *model.StepInfo) error {
	pl.counters(step.Name)

	parents := make([]string, 0, len(parentSteps))
	for _, parentStep := range parentSteps {
		parents = append(parents, parentStep.Name)
	}

	pl.log.Debug().Str("step", step.Name).Strs("parents", parents).Str("kind", "merger").Msg("step prepared")

	return nil
}

func (pl *pipelineLogger) PrepareSink(parentStep, step *model.StepInfo) error {
	pl.prepare("sink", parentStep, step)

	return nil
}

func (pl *pipelineLogger) OnStepOutput(_, step *model.StepInfo, _, _ time.Duration) error {
	pl.counters(step.Name).emitted.Add(1)

	return nil
}

func (pl *pipelineLogger) OnStepDrop(_, step *model.StepInfo, cause error) error {
	cnt := pl.counters(step.Name)
	if cause == nil {
		cnt.filtered.Add(1)

		return nil
	}

	cnt.skipped.Add(1)
	pl.log.Warn().Err(cause).Str("step", step.Name).Msg("record skipped")

	return nil
}

func (pl *pipelineLogger) done(step *model.StepInfo, startedAt, endedAt time.Time) {
	cnt := pl.counters(step.Name)
	pl.log.Info().
		Str("step", step.Name).
		Int64("emitted", cnt.emitted.Load()).
		Int64("filtered", cnt.filtered.Load()).
		Int64("skipped", cnt.skipped.Load()).
		Dur("duration", endedAt.Sub(startedAt)).
		Msg("step finished")
}

func (pl *pipelineLogger) AfterStep(step *model.StepInfo, startedAt, endedAt time.Time) error {
	pl.done(step, startedAt, endedAt)

	return nil
}

func (pl *pipelineLogger) OnSplitterOutput(_, splitterStep *model.StepInfo, _, _ time.Duration) error {
	pl.counters(splitterStep.Name).emitted.Add(1)

	return nil
}

func (pl *pipelineLogger) OnMergerOutput(_, outputStep *model.StepInfo, _ time.Duration) error {
	pl.counters(outputStep.Name).emitted.Add(1)

	return nil
}

func (pl *pipelineLogger) OnSinkOutput(_, step *model.StepInfo, _, _ time.Duration) error {
	pl.counters(step.Name).emitted.Add(1)

	return nil
}

func (pl *pipelineLogger) AfterSink(step *model.StepInfo, startedAt, endedAt time.Time) error {
	pl.done(step, startedAt, endedAt)

	return nil
}

func (pl *pipelineLogger) Finish() error {
	pl.log.Info().Dur("duration", time.Since(pl.startTime)).Msg("pipeline finished")

	return nil
}

// PipelineLogger returns a pipeline option that logs every step start and end on log.
// Skipped records are logged at warn level with their cause.
func PipelineLogger(log zerolog.Logger) model.PipelineOption {
	return &pipelineLogger{log: log, startTime: time.Now()}
}
