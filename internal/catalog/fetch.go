package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/juju/clock"
	jujuerrors "github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
	"github.com/JonMunkholm/osversion-ingest/internal/logging"
)

// maxDocumentSize bounds how much of a catalog response is read.
const maxDocumentSize = 16 << 20

// Fetcher retrieves one catalog document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Node, error)
}

// RetryConfig bounds retries of transient fetch failures.
type RetryConfig struct {
	Attempts int           // Total attempts including the first (default: 10)
	Delay    time.Duration // Delay before the first retry, doubled each time (default: 250ms)
	MaxDelay time.Duration // Cap on the delay between attempts (default: 30s)
}

const (
	defaultRetryAttempts = 10
	defaultRetryDelay    = 250 * time.Millisecond
	defaultRetryMaxDelay = 30 * time.Second
)

// StatusError is a non-2xx catalog response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// connectionError marks a transport failure (dial, reset, TLS) as retryable.
type connectionError struct {
	err error
}

func (e *connectionError) Error() string { return e.err.Error() }
func (e *connectionError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var connErr *connectionError
	if errors.As(err, &connErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return false
}

// HTTPFetcher fetches catalog documents over HTTP, retrying connection
// failures and throttling/unavailable responses with exponential back-off.
type HTTPFetcher struct {
	client *http.Client
	retry  RetryConfig
	clock  clock.Clock
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient and
// a nil clock uses the wall clock.
func NewHTTPFetcher(client *http.Client, cfg RetryConfig, clk clock.Clock) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultRetryAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultRetryDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultRetryMaxDelay
	}
	return &HTTPFetcher{client: client, retry: cfg, clock: clk}
}

// Fetch GETs url and decodes the body as a JSON document.
//
// Errors wrap core.ErrFetch when the document could not be retrieved and
// core.ErrMalformedCatalog when the body is not valid JSON.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Node, error) {
	logger := logging.FromContext(ctx)

	var doc Node
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			doc, err = f.fetchOnce(ctx, url)
			return err
		},
		IsFatalError: func(err error) bool {
			return !isTransient(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warn("catalog fetch failed, retrying",
				"url", url,
				"attempt", attempt,
				"error", err,
			)
		},
		Attempts:    f.retry.Attempts,
		Delay:       f.retry.Delay,
		MaxDelay:    f.retry.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       f.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		last := attemptError(err)
		if errors.Is(last, core.ErrMalformedCatalog) {
			return Node{}, last
		}
		if retry.IsRetryStopped(err) && ctx.Err() != nil && !errors.Is(last, ctx.Err()) {
			last = fmt.Errorf("%w: last attempt: %w", ctx.Err(), last)
		}
		return Node{}, fmt.Errorf("%w: %s: %w", core.ErrFetch, url, last)
	}

	return doc, nil
}

// attemptError recovers the error of the final attempt from a retry.Call
// result. LastError only understands the give-up errors; fatal errors come
// back traced and are unwrapped with Cause.
func attemptError(err error) error {
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) || retry.IsDurationExceeded(err) {
		if last := retry.LastError(err); last != nil {
			return last
		}
		return err
	}
	return jujuerrors.Cause(err)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Node{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Node{}, ctx.Err()
		}
		return Node{}, &connectionError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Node{}, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	var doc Node
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&doc); err != nil {
		return Node{}, fmt.Errorf("%w: decode %s: %v", core.ErrMalformedCatalog, url, err)
	}
	return doc, nil
}
