package stream

import "context"

// Reader reads records from an opened source.
type Reader[R any] interface {
	// Read returns the next record, or io.EOF once the source is exhausted.
	Read(ctx context.Context) (R, error)
	// Close releases the resources held by the reader.
	Close() error
}

// Source opens readers. Every Open must be balanced by a Close on the returned reader.
type Source[R any] interface {
	Open(ctx context.Context) (Reader[R], error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc[R any] func(ctx context.Context) (Reader[R], error)

// Open calls f.
func (f SourceFunc[R]) Open(ctx context.Context) (Reader[R], error) {
	return f(ctx)
}

// Sink receives the records of a pipeline.
type Sink[R any] interface {
	// Open acquires the sink resources. It is called before the first record.
	Open(ctx context.Context) error
	// Write stores one record.
	Write(ctx context.Context, rec R) error
	// Close releases the sink resources.
	Close() error
}

// Transform processes one record. Returning false drops the record.
type Transform[R any] func(ctx context.Context, rec R) (R, bool, error)

// Map returns a transform that never drops records.
func Map[R any](fn func(ctx context.Context, rec R) (R, error)) Transform[R] {
	return func(ctx context.Context, rec R) (R, bool, error) {
		out, err := fn(ctx, rec)
		if err != nil {
			return out, false, err
		}

		return out, true, nil
	}
}

// Filter returns a transform that keeps the records accepted by fn, unchanged.
func Filter[R any](fn func(ctx context.Context, rec R) (bool, error)) Transform[R] {
	return func(ctx context.Context, rec R) (R, bool, error) {
		keep, err := fn(ctx, rec)

		return rec, keep, err
	}
}
