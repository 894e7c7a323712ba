package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/go-etl/pkg/retry"
)

var (
	ErrClosed     = errors.New("source closed")
	ErrHTTPStatus = errors.New("unexpected http status")
)

// Opener acquires a stream of bytes. The caller must close it.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// File opens the file at path.
func File(path string) Opener {
	return func(_ context.Context) (io.ReadCloser, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to open %s", path)
		}

		return file, nil
	}
}

// Reader wraps an already opened reader. It is closed by the source when it implements io.Closer.
func Reader(r io.Reader) Opener {
	return func(_ context.Context) (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}

		return io.NopCloser(r), nil
	}
}

// HTTP sends a GET request to url and returns the response body.
// Server errors and transport errors are retried according to cfg, other statuses fail at once.
func HTTP(client *http.Client, url string, cfg retry.Config, log zerolog.Logger) Opener {
	if client == nil {
		client = http.DefaultClient
	}

	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
			log.Warn().Err(err).Str("url", url).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying request")
		}
	}

	return func(ctx context.Context) (io.ReadCloser, error) {
		return retry.Timed(ctx, log, "GET "+url, func(ctx context.Context) (io.ReadCloser, error) {
			return retry.Do(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
				return get(ctx, client, url)
			})
		})
	}
}

func get(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(errors.Wrap(err, "unable to create request"))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get %s", url)
	}

	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	// the body of a failed response is not needed
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	statusErr := errors.Wrap(ErrHTTPStatus, fmt.Sprintf("%s: %s", url, resp.Status))
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, statusErr
	}

	return nil, retry.Permanent(statusErr)
}

// onceCloser closes the underlying closer at most once.
type onceCloser struct {
	once   sync.Once
	closer io.Closer
	err    error
}

func (o *onceCloser) Close() error {
	o.once.Do(func() {
		o.err = o.closer.Close()
	})

	return o.err
}
