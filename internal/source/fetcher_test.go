package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testFetcher() *Fetcher {
	return NewFetcher(FetcherConfig{
		UserAgent:         "kita-test",
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             10,
		RetryCount:        2,
		RetryWait:         time.Millisecond,
	})
}

func TestFetcherGetSendsUserAgentAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "kita-test" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(r.URL.Query().Get("page")))
	}))
	defer srv.Close()

	resp, err := testFetcher().Get(context.Background(), srv.URL, map[string]string{"page": "2"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body()) != "2" {
		t.Errorf("body = %q, want 2", resp.Body())
	}
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := testFetcher().Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body()) != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("body = %q after %d calls", resp.Body(), calls)
	}
}

func TestFetcherRateLimitsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{
		Timeout:           2 * time.Second,
		RequestsPerSecond: 20,
		Burst:             1,
		RetryCount:        2,
		RetryWait:         time.Millisecond,
	})

	start := time.Now()
	if _, err := f.Get(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	// three attempts at 20/s with a burst of one need two full intervals
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three attempts took %v, retries bypassed the limiter", elapsed)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestFetcherReturnsFetchErrorWithStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("gone"))
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), srv.URL, nil)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.StatusCode != http.StatusNotFound || fe.Body != "gone" {
		t.Errorf("FetchError = %+v", fe)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should be true for 404")
	}
}

func TestFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewFetcher(FetcherConfig{RequestsPerSecond: 1000, Burst: 1, Timeout: time.Second})
	_, err := f.Get(context.Background(), url, nil)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 0 {
		t.Fatalf("err = %v, want transport FetchError", err)
	}
}

func TestFetcherHonoursCancelledContext(t *testing.T) {
	f := NewFetcher(FetcherConfig{RequestsPerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	// drain the single burst token so the next call has to wait
	f.limiter.Allow()
	cancel()

	if _, err := f.Get(ctx, "http://127.0.0.1:1", nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
