package sink_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-etl/pkg/record"
	"github.com/askiada/go-etl/pkg/sink"
	"github.com/askiada/go-etl/pkg/source"
	"github.com/askiada/go-etl/pkg/stream"
)

type countingWriter struct {
	bytes.Buffer
	closes atomic.Int32
}

func (c *countingWriter) Close() error {
	c.closes.Add(1)

	return nil
}

func countingTarget(w *countingWriter) sink.Target {
	return func(context.Context) (io.WriteCloser, error) {
		return w, nil
	}
}

func TestJSONArray(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		records []record.Record
		want    string
	}{
		"records": {
			records: []record.Record{{"id": 1}, {"id": 2}},
			want:    "[{\"id\":1},\n{\"id\":2}]\n",
		},
		"empty": {
			want: "[]\n",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			w := &countingWriter{}
			snk := sink.JSONArray[record.Record](countingTarget(w))
			require.NoError(t, snk.Open(t.Context()))
			for _, rec := range tc.records {
				require.NoError(t, snk.Write(t.Context(), rec))
			}
			require.NoError(t, snk.Close())
			require.NoError(t, snk.Close())

			assert.Equal(t, tc.want, w.String())
			assert.Equal(t, int32(1), w.closes.Load())
			assert.Equal(t, len(tc.records), snk.Written())
		})
	}
}

func TestJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	snk := sink.JSONLines[record.Record](sink.Writer(&buf))
	require.NoError(t, snk.Open(t.Context()))
	require.NoError(t, snk.Write(t.Context(), record.Record{"name": "a"}))
	require.NoError(t, snk.Write(t.Context(), record.Record{"name": "b"}))
	require.NoError(t, snk.Close())

	assert.Equal(t, "{\"name\":\"a\"}\n{\"name\":\"b\"}\n", buf.String())
}

func TestLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	snk := sink.Lines(sink.Writer(&buf), "line")
	require.NoError(t, snk.Open(t.Context()))
	require.NoError(t, snk.Write(t.Context(), record.Record{"line": "ERROR boom"}))
	require.NoError(t, snk.Write(t.Context(), record.Record{"line": 42}))
	require.NoError(t, snk.Close())

	assert.Equal(t, "ERROR boom\n42\n", buf.String())
}

func TestLinesUnsupportedValue(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	snk := sink.Lines(sink.Writer(&buf), "line")
	require.NoError(t, snk.Open(t.Context()))
	require.Error(t, snk.Write(t.Context(), record.Record{"line": []int{1}}))
	require.NoError(t, snk.Close())
}

func TestWriteBeforeOpen(t *testing.T) {
	t.Parallel()

	snk := sink.JSONLines[int](sink.Writer(io.Discard))
	require.ErrorIs(t, snk.Write(t.Context(), 1), sink.ErrNotOpened)
	// closing a sink never opened does nothing
	require.NoError(t, snk.Close())
}

func TestOpenTwice(t *testing.T) {
	t.Parallel()

	snk := sink.JSONLines[int](sink.Writer(io.Discard))
	require.NoError(t, snk.Open(t.Context()))
	require.ErrorIs(t, snk.Open(t.Context()), sink.ErrAlreadyOpened)
	require.NoError(t, snk.Close())
}

func TestNilTarget(t *testing.T) {
	t.Parallel()

	snk := sink.JSONLines[int](nil)
	require.ErrorIs(t, snk.Open(t.Context()), sink.ErrTargetMustBeSet)
}

func TestTargetFailure(t *testing.T) {
	t.Parallel()

	errTest := errors.New("no space left")
	snk := sink.JSONLines[int](func(context.Context) (io.WriteCloser, error) {
		return nil, errTest
	})
	require.ErrorIs(t, snk.Open(t.Context()), errTest)
	require.NoError(t, snk.Close())
}

func TestJSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "records.json")
	snk := sink.JSONFile[record.Record](path)
	require.NoError(t, snk.Open(t.Context()))
	require.NoError(t, snk.Write(t.Context(), record.Record{"id": 1}))
	require.NoError(t, snk.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id": 1}]`, string(got))
}

func TestFileCreateFailure(t *testing.T) {
	t.Parallel()

	// a directory cannot be created below a regular file
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, nil, 0o600))

	snk := sink.LinesFile(filepath.Join(parent, "out.txt"), "line")
	require.Error(t, snk.Open(t.Context()))
}

func TestDrainFileToFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	out := filepath.Join(dir, "out.jsonl")
	require.NoError(t, os.WriteFile(in, []byte("{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n"), 0o600))

	summary, err := stream.New("copy", source.JSONLines(source.File(in))).
		Then("odd", stream.Filter(func(_ context.Context, rec record.Record) (bool, error) {
			n, err := rec.Float("n")

			return int(n)%2 == 1, err
		})).
		Drain(t.Context(), sink.JSONLinesFile[record.Record](out))
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Emitted)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":3}\n", string(got))
}
