package sink

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/askiada/go-etl/pkg/record"
)

var (
	ErrTargetMustBeSet = errors.New("target must be set")
	ErrNotOpened       = errors.New("sink not opened")
	ErrAlreadyOpened   = errors.New("sink already opened")
)

// Target acquires the output of a sink. The sink closes it.
type Target func(ctx context.Context) (io.WriteCloser, error)

// File creates, or truncates, the file at path. Missing parent directories are created.
func File(path string) Target {
	return func(_ context.Context) (io.WriteCloser, error) {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "unable to create directory %s", dir)
			}
		}

		file, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to create %s", path)
		}

		return file, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Writer writes to w. w is never closed.
func Writer(w io.Writer) Target {
	return func(_ context.Context) (io.WriteCloser, error) {
		return nopWriteCloser{Writer: w}, nil
	}
}

// format encodes records to a buffered writer.
type format[R any] struct {
	begin func(w *bufio.Writer) error
	write func(w *bufio.Writer, rec R, idx int) error
	end   func(w *bufio.Writer) error
}

// Sink writes records to a target with a format.
type Sink[R any] struct {
	target Target
	format format[R]

	mu       sync.Mutex
	out      io.WriteCloser
	buf      *bufio.Writer
	written  int
	once     sync.Once
	closeErr error
}

func newSink[R any](target Target, f format[R]) *Sink[R] {
	return &Sink[R]{target: target, format: f}
}

// Open acquires the target and writes the beginning of the format.
func (s *Sink[R]) Open(ctx context.Context) error {
	if s.target == nil {
		return ErrTargetMustBeSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		return ErrAlreadyOpened
	}

	out, err := s.target(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to open target")
	}
	buf := bufio.NewWriter(out)

	if s.format.begin != nil {
		if err := s.format.begin(buf); err != nil {
			_ = out.Close()

			return errors.Wrap(err, "unable to write header")
		}
	}
	s.out, s.buf = out, buf

	return nil
}

// Write encodes rec.
func (s *Sink[R]) Write(ctx context.Context, rec R) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return ErrNotOpened
	}

	if err := s.format.write(s.buf, rec, s.written); err != nil {
		return errors.Wrapf(err, "unable to write record %d", s.written)
	}
	s.written++

	return nil
}

// Written returns the number of records written so far.
func (s *Sink[R]) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.written
}

// Close writes the end of the format, flushes and releases the target.
// Only the first call has an effect. Closing a sink that was never opened does nothing.
func (s *Sink[R]) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.out == nil {
			return
		}

		if s.format.end != nil {
			s.closeErr = errors.Wrap(s.format.end(s.buf), "unable to write footer")
		}
		if err := s.buf.Flush(); err != nil && s.closeErr == nil {
			s.closeErr = errors.Wrap(err, "unable to flush")
		}
		if err := s.out.Close(); err != nil && s.closeErr == nil {
			s.closeErr = errors.Wrap(err, "unable to close target")
		}
	})

	return s.closeErr
}

// JSONArray writes records as the elements of a JSON array.
func JSONArray[R any](target Target) *Sink[R] {
	return newSink(target, format[R]{
		begin: func(w *bufio.Writer) error {
			_, err := w.WriteString("[")

			return err
		},
		write: func(w *bufio.Writer, rec R, idx int) error {
			b, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if idx > 0 {
				if _, err := w.WriteString(",\n"); err != nil {
					return err
				}
			}
			_, err = w.Write(b)

			return err
		},
		end: func(w *bufio.Writer) error {
			_, err := w.WriteString("]\n")

			return err
		},
	})
}

// JSONLines writes one JSON value per line.
func JSONLines[R any](target Target) *Sink[R] {
	return newSink(target, format[R]{
		write: func(w *bufio.Writer, rec R, _ int) error {
			b, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if _, err := w.Write(b); err != nil {
				return err
			}

			return w.WriteByte('\n')
		},
	})
}

// Lines writes the value of field of every record on its own line.
func Lines(target Target, field string) *Sink[record.Record] {
	return newSink(target, format[record.Record]{
		write: func(w *bufio.Writer, rec record.Record, _ int) error {
			value, err := cast.ToStringE(rec[field])
			if err != nil {
				return errors.Wrapf(err, "field %s", field)
			}
			if _, err := w.WriteString(value); err != nil {
				return err
			}

			return w.WriteByte('\n')
		},
	})
}

// JSONFile writes records as a JSON array to the file at path.
func JSONFile[R any](path string) *Sink[R] {
	return JSONArray[R](File(path))
}

// JSONLinesFile writes records as JSON lines to the file at path.
func JSONLinesFile[R any](path string) *Sink[R] {
	return JSONLines[R](File(path))
}

// LinesFile writes field of every record to the file at path.
func LinesFile(path, field string) *Sink[record.Record] {
	return Lines(File(path), field)
}
