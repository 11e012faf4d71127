// Package fetch retrieves source payloads over HTTP with bounded retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultAttempts     = 3
	defaultDelay        = 5 * time.Second
	defaultUserAgent    = "reddot-collector/1.0"
	defaultMaxBodyBytes = 10 << 20
)

// Options configures a Fetcher. Zero values fall back to the defaults.
type Options struct {
	Timeout      time.Duration // per attempt, including reading the body
	Attempts     int
	Delay        time.Duration // fixed wait between attempts
	UserAgent    string
	MaxBodyBytes int64
}

// DefaultOptions returns the standard fetch policy: 30s timeout, 3 attempts, 5s apart.
func DefaultOptions() Options {
	return Options{
		Timeout:      defaultTimeout,
		Attempts:     defaultAttempts,
		Delay:        defaultDelay,
		UserAgent:    defaultUserAgent,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = d.MaxBodyBytes
	}
	return o
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// FetchError is returned once every attempt has failed. Err is the last cause.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: giving up after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrBodyTooLarge is returned when a response exceeds Options.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Fetcher performs GET requests with a fixed retry policy.
// Each Fetcher owns its HTTP client and connection pool; nothing is shared
// with other fetchers except the host limiter.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *HostLimiter
}

// New creates a Fetcher. limiter may be nil.
func New(opts Options, limiter *HostLimiter) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		opts:    opts.withDefaults(),
		limiter: limiter,
	}
}

// CloseIdleConnections releases the connections kept by this fetcher.
func (f *Fetcher) CloseIdleConnections() {
	f.client.CloseIdleConnections()
}

// Fetch returns the body of a successful response for url.
// Timeouts, connection errors and non-2xx statuses are retried. If ctx is
// cancelled the call returns ctx.Err() without waiting for the next attempt.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		if err := f.limiter.Wait(ctx, url); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return nil, &FetchError{URL: url, Attempts: attempt, Err: reqErr.err}
		}

		lastErr = err
		log.Debug().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Int("max_attempts", f.opts.Attempts).
			Msg("Fetch attempt failed")

		if attempt < f.opts.Attempts && f.opts.Delay > 0 {
			timer := time.NewTimer(f.opts.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, &FetchError{URL: url, Attempts: f.opts.Attempts, Err: lastErr}
}

// requestError marks failures that no retry can fix, such as a malformed URL.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &requestError{err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, &requestError{err: fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.opts.MaxBodyBytes)}
	}
	return body, nil
}
