package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/go-etl/pkg/record"
	"github.com/askiada/go-etl/pkg/retry"
	"github.com/askiada/go-etl/pkg/stream"
)

// maxLineSize is the longest line accepted by the line based formats.
const maxLineSize = 1024 * 1024

var (
	ErrOpenerMustBeSet = errors.New("opener must be set")
	ErrNotJSONArray    = errors.New("input is not a json array")
	ErrNotJSONObject   = errors.New("value is not a json object")
)

// decodeReader reads records with next, and releases the opened resource on Close.
type decodeReader[R any] struct {
	closer *onceCloser
	next   func() (R, error)
}

func (r *decodeReader[R]) Read(ctx context.Context) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	return r.next()
}

func (r *decodeReader[R]) Close() error {
	return r.closer.Close()
}

// decoded builds a source opening the bytes with open, and decoding them with newNext.
// The opened resource is closed when newNext fails.
func decoded[R any](open Opener, newNext func(rc io.ReadCloser) (func() (R, error), error)) stream.Source[R] {
	return stream.SourceFunc[R](func(ctx context.Context) (stream.Reader[R], error) {
		if open == nil {
			return nil, ErrOpenerMustBeSet
		}

		rc, err := open(ctx)
		if err != nil {
			return nil, err
		}

		closer := &onceCloser{closer: rc}
		next, err := newNext(rc)
		if err != nil {
			_ = closer.Close()

			return nil, err
		}

		return &decodeReader[R]{closer: closer, next: next}, nil
	})
}

// Slice returns a source reading records in order. Each Open starts from the first record.
func Slice[R any](records []R) stream.Source[R] {
	return stream.SourceFunc[R](func(context.Context) (stream.Reader[R], error) {
		return &sliceReader[R]{records: records}, nil
	})
}

type sliceReader[R any] struct {
	records []R
	idx     int
	closed  atomic.Bool
}

func (r *sliceReader[R]) Read(ctx context.Context) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.closed.Load() {
		return zero, ErrClosed
	}
	if r.idx >= len(r.records) {
		return zero, io.EOF
	}
	rec := r.records[r.idx]
	r.idx++

	return rec, nil
}

func (r *sliceReader[R]) Close() error {
	r.closed.Store(true)

	return nil
}

// Lines reads one record per line, with the fields "line" and "line_number".
// Line numbers start at 1.
func Lines(open Opener) stream.Source[record.Record] {
	return decoded(open, func(rc io.ReadCloser) (func() (record.Record, error), error) {
		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)
		lineNumber := 0

		return func() (record.Record, error) {
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return nil, errors.Wrapf(err, "unable to read line %d", lineNumber+1)
				}

				return nil, io.EOF
			}
			lineNumber++

			return record.Record{"line": scanner.Text(), "line_number": lineNumber}, nil
		}, nil
	})
}

// JSONLines reads one JSON object per line.
func JSONLines(open Opener) stream.Source[record.Record] {
	return decoded(open, func(rc io.ReadCloser) (func() (record.Record, error), error) {
		dec := json.NewDecoder(rc)
		dec.UseNumber()
		idx := 0

		return func() (record.Record, error) {
			var rec record.Record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if err != nil {
				return nil, errors.Wrapf(err, "unable to decode object %d", idx)
			}
			if rec == nil {
				return nil, errors.Wrapf(ErrNotJSONObject, "object %d", idx)
			}
			idx++

			return normalizeRecord(rec), nil
		}, nil
	})
}

// JSONArray reads the objects of a JSON array one at a time, without loading the whole array.
func JSONArray(open Opener) stream.Source[record.Record] {
	return decoded(open, func(rc io.ReadCloser) (func() (record.Record, error), error) {
		dec := json.NewDecoder(rc)
		dec.UseNumber()
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "unable to read array start")
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return nil, ErrNotJSONArray
		}
		idx := 0
		done := false

		return func() (record.Record, error) {
			if done {
				return nil, io.EOF
			}
			if !dec.More() {
				done = true
				if _, err := dec.Token(); err != nil {
					return nil, errors.Wrap(err, "unable to read array end")
				}

				return nil, io.EOF
			}

			var rec record.Record
			if err := dec.Decode(&rec); err != nil {
				return nil, errors.Wrapf(err, "unable to decode element %d", idx)
			}
			if rec == nil {
				return nil, errors.Wrapf(ErrNotJSONObject, "element %d", idx)
			}
			idx++

			return normalizeRecord(rec), nil
		}, nil
	})
}

// normalizeRecord replaces the json.Number values of rec, nested ones included.
// Integers become int64 so identifiers above 2^53 are kept exactly, other numbers become float64.
func normalizeRecord(rec record.Record) record.Record {
	for field, value := range rec {
		rec[field] = normalizeValue(value)
	}

	return rec
}

func normalizeValue(value any) any {
	switch val := value.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}

		return val.String()
	case map[string]any:
		for key, item := range val {
			val[key] = normalizeValue(item)
		}

		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeValue(item)
		}

		return val
	default:
		return value
	}
}

// HTTPJSON fetches a JSON array from url, retrying failed requests according to cfg.
func HTTPJSON(client *http.Client, url string, cfg retry.Config, log zerolog.Logger) stream.Source[record.Record] {
	return JSONArray(HTTP(client, url, cfg, log))
}

// CSV reads a CSV document whose first row holds the field names.
// Every value is kept as a string.
func CSV(open Opener) stream.Source[record.Record] {
	return decoded(open, func(rc io.ReadCloser) (func() (record.Record, error), error) {
		reader := csv.NewReader(rc)
		header, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return func() (record.Record, error) { return nil, io.EOF }, nil
			}

			return nil, errors.Wrap(err, "unable to read header")
		}
		header = append([]string(nil), header...)

		return func() (record.Record, error) {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if err != nil {
				return nil, errors.Wrap(err, "unable to read row")
			}

			rec := make(record.Record, len(header))
			for i, name := range header {
				rec[name] = row[i]
			}

			return rec, nil
		}, nil
	})
}
