package stream_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/askiada/go-etl/pkg/stream"
)

var errRead = errors.New("read failure")

// countingSource serves records and counts how often it is opened and closed.
type countingSource struct {
	records []int
	failAt  int
	openErr error
	opens   atomic.Int32
	closes  atomic.Int32
}

func newCountingSource(total int) *countingSource {
	records := make([]int, total)
	for i := range records {
		records[i] = i
	}

	return &countingSource{records: records, failAt: -1}
}

func (s *countingSource) Open(_ context.Context) (stream.Reader[int], error) {
	s.opens.Add(1)
	if s.openErr != nil {
		return nil, s.openErr
	}

	return &countingReader{src: s}, nil
}

type countingReader struct {
	src *countingSource
	idx int
}

func (r *countingReader) Read(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.idx == r.src.failAt {
		return 0, errRead
	}
	if r.idx >= len(r.src.records) {
		return 0, io.EOF
	}

	rec := r.src.records[r.idx]
	r.idx++

	return rec, nil
}

func (r *countingReader) Close() error {
	r.src.closes.Add(1)

	return nil
}

// memorySink keeps the records in memory.
type memorySink struct {
	mu      sync.Mutex
	records []int
	failAt  int
	opens   atomic.Int32
	closes  atomic.Int32
}

func newMemorySink() *memorySink {
	return &memorySink{failAt: -1}
}

func (s *memorySink) Open(_ context.Context) error {
	s.opens.Add(1)

	return nil
}

func (s *memorySink) Write(_ context.Context, rec int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec == s.failAt {
		return errors.New("write failure")
	}
	s.records = append(s.records, rec)

	return nil
}

func (s *memorySink) Close() error {
	s.closes.Add(1)

	return nil
}

func (s *memorySink) values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]int(nil), s.records...)
}

func isEven(_ context.Context, rec int) (bool, error) {
	return rec%2 == 0, nil
}

func double(_ context.Context, rec int) (int, error) {
	return rec * 2, nil
}

func failOn(value int) stream.Transform[int] {
	return stream.Map(func(_ context.Context, rec int) (int, error) {
		if rec == value {
			return 0, errors.New("transform failure")
		}

		return rec, nil
	})
}
