package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-etl/pkg/pipeline/logging"
	"github.com/askiada/go-etl/pkg/pipeline/model"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	res := []map[string]any{}

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		res = append(res, entry)
	}

	return res
}

func TestPipelineLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	opt := logging.PipelineLogger(zerolog.New(zerolog.SyncWriter(&buf)).Level(zerolog.DebugLevel))

	step := &model.StepInfo{Name: "upper", Concurrent: 1}
	now := time.Now()

	require.NoError(t, opt.New())
	require.NoError(t, opt.PrepareStep(model.StartStep.Details, step))
	require.NoError(t, opt.OnStepOutput(model.StartStep.Details, step, time.Millisecond, time.Millisecond))
	require.NoError(t, opt.OnStepOutput(model.StartStep.Details, step, time.Millisecond, time.Millisecond))
	require.NoError(t, opt.OnStepDrop(model.StartStep.Details, step, nil))
	require.NoError(t, opt.OnStepDrop(model.StartStep.Details, step, errors.New("boom")))
	require.NoError(t, opt.AfterStep(step, now.Add(-time.Second), now))
	require.NoError(t, opt.Finish())

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 5)

	assert.Equal(t, "pipeline created", entries[0]["message"])
	assert.Equal(t, "step prepared", entries[1]["message"])
	assert.Equal(t, "start", entries[1]["parent"])

	assert.Equal(t, "warn", entries[2]["level"])
	assert.Equal(t, "boom", entries[2]["error"])

	finished := entries[3]
	assert.Equal(t, "step finished", finished["message"])
	assert.Equal(t, "upper", finished["step"])
	assert.InDelta(t, 2, finished["emitted"], 0)
	assert.InDelta(t, 1, finished["filtered"], 0)
	assert.InDelta(t, 1, finished["skipped"], 0)

	assert.Equal(t, "pipeline finished", entries[4]["message"])
}

func TestPipelineLoggerSinkAndMerger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	opt := logging.PipelineLogger(zerolog.New(zerolog.SyncWriter(&buf)).Level(zerolog.InfoLevel))

	left := &model.StepInfo{Name: "left"}
	right := &model.StepInfo{Name: "right"}
	merged := &model.StepInfo{Name: "merged"}
	sink := &model.StepInfo{Name: "sink"}
	now := time.Now()

	require.NoError(t, opt.New())
	require.NoError(t, opt.PrepareMerger([]*model.StepInfo{left, right}, merged))
	require.NoError(t, opt.OnMergerOutput(left, merged, time.Millisecond))
	require.NoError(t, opt.PrepareSink(merged, sink))
	require.NoError(t, opt.OnSinkOutput(merged, sink, time.Millisecond, time.Millisecond))
	require.NoError(t, opt.AfterSink(sink, now, now))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "sink", entries[0]["step"])
	assert.InDelta(t, 1, entries[0]["emitted"], 0)
}
