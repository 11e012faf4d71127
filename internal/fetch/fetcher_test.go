package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastOptions(attempts int) Options {
	return Options{Timeout: time.Second, Attempts: attempts, Delay: time.Millisecond}
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	body, err := New(fastOptions(3), nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<rss/>" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestFetchGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(fastOptions(3), nil).Fetch(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fe.Attempts != 3 || calls.Load() != 3 {
		t.Errorf("attempts = %d, calls = %d", fe.Attempts, calls.Load())
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Errorf("last cause = %v, want status 500", fe.Err)
	}
}

func TestFetchTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	opts := Options{Timeout: 20 * time.Millisecond, Attempts: 2, Delay: time.Millisecond}
	_, err := New(opts, nil).Fetch(context.Background(), srv.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetchCancelledDuringDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	opts := Options{Timeout: time.Second, Attempts: 3, Delay: time.Hour}
	start := time.Now()
	_, err := New(opts, nil).Fetch(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the retry delay")
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := fastOptions(1)
	opts.UserAgent = "test-agent/2"
	if _, err := New(opts, nil).Fetch(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if ua != "test-agent/2" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestFetchInvalidURLIsNotRetried(t *testing.T) {
	_, err := New(fastOptions(3), nil).Fetch(context.Background(), "://bad")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Attempts != 1 {
		t.Fatalf("error = %v, want FetchError after 1 attempt", err)
	}
}

func TestFetchOversizedBodyIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	opts := fastOptions(3)
	opts.MaxBodyBytes = 63
	_, err := New(opts, nil).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("error = %v, want ErrBodyTooLarge", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("hits = %d, want 1", n)
	}

	opts.MaxBodyBytes = 64
	body, err := New(opts, nil).Fetch(context.Background(), srv.URL)
	if err != nil || len(body) != 64 {
		t.Errorf("body at the limit: len=%d err=%v", len(body), err)
	}
}

func TestFetchersDoNotShareConnections(t *testing.T) {
	a, b := New(fastOptions(1), nil), New(fastOptions(1), nil)
	if a.client == b.client || a.client.Transport == b.client.Transport {
		t.Error("fetchers share an HTTP client or transport")
	}
	if a.client.Transport == http.DefaultTransport {
		t.Error("fetcher uses the process-wide default transport")
	}
}

func TestDefaultOptions(t *testing.T) {
	o := Options{}.withDefaults()
	if o.Timeout != 30*time.Second || o.Attempts != 3 || o.Delay != 0 {
		t.Errorf("withDefaults = %+v", o)
	}
	d := DefaultOptions()
	if d.Delay != 5*time.Second {
		t.Errorf("default delay = %v", d.Delay)
	}
}

func TestHostLimiter(t *testing.T) {
	if NewHostLimiter(0, 1) != nil {
		t.Fatal("zero rate should disable limiting")
	}
	var nilLimiter *HostLimiter
	if err := nilLimiter.Wait(context.Background(), "https://a.example"); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}

	l := NewHostLimiter(1, 1)
	if err := l.Wait(context.Background(), "https://a.example/feed"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://A.example/other"); err == nil {
		t.Error("second request to the same host should be throttled")
	}
	if err := l.Wait(context.Background(), "https://b.example/feed"); err != nil {
		t.Errorf("other host should not be throttled: %v", err)
	}
}
