package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/any-hub/status-hub/internal/code"
)

func TestFetchReturnsBodyOn200(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	fetcher := newTestFetcher(t, srv.URL+"/{code}.jpg", Options{})
	body, err := fetcher.Fetch(context.Background(), mustCode(t, "200"))
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if string(body) != "jpeg-bytes" {
		t.Fatalf("unexpected body %q", body)
	}
	if gotPath != "/200.jpg" {
		t.Fatalf("expected /200.jpg, got %s", gotPath)
	}
	if !strings.HasPrefix(gotAgent, "status-hub/") {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}
}

func TestFetchFoldsFailuresIntoUnavailable(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
		opts    Options
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "redirect target missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/moved" {
					w.WriteHeader(http.StatusGone)
					return
				}
				http.Redirect(w, r, "/moved", http.StatusFound)
			},
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(strings.Repeat("x", 64)))
			},
			opts: Options{MaxBodySize: 16},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			fetcher := newTestFetcher(t, srv.URL+"/{code}", tc.opts)
			body, err := fetcher.Fetch(context.Background(), mustCode(t, "404"))
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
			if body != nil {
				t.Fatalf("expected no body, got %q", body)
			}
		})
	}
}

func TestFetchNetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL + "/{code}"
	srv.Close()

	fetcher := newTestFetcher(t, target, Options{})
	if _, err := fetcher.Fetch(context.Background(), mustCode(t, "503")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	fetcher, err := NewHTTPFetcher(client, Options{URLTemplate: srv.URL + "/{code}"})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	if _, err := fetcher.Fetch(context.Background(), mustCode(t, "504")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchThrottleRespectsContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	fetcher := newTestFetcher(t, srv.URL+"/{code}", Options{RateLimit: 0.001, Burst: 1})
	if _, err := fetcher.Fetch(context.Background(), mustCode(t, "200")); err != nil {
		t.Fatalf("first fetch should use burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := fetcher.Fetch(ctx, mustCode(t, "201")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("throttled fetch should be unavailable, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("throttled fetch must not reach upstream, hits=%d", hits.Load())
	}
}

func TestNewHTTPFetcherValidatesTemplate(t *testing.T) {
	if _, err := NewHTTPFetcher(http.DefaultClient, Options{URLTemplate: "https://http.cat/200.jpg"}); err == nil {
		t.Fatalf("template without placeholder should fail")
	}
	if _, err := NewHTTPFetcher(nil, Options{URLTemplate: "https://http.cat/{code}.jpg"}); err == nil {
		t.Fatalf("nil client should fail")
	}
}

func TestFetcherFuncAdapter(t *testing.T) {
	var got code.Code
	f := FetcherFunc(func(_ context.Context, c code.Code) ([]byte, error) {
		got = c
		return []byte("stub"), nil
	})
	if _, err := f.Fetch(context.Background(), mustCode(t, "302")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "302" {
		t.Fatalf("adapter should forward code, got %s", got)
	}
}

func newTestFetcher(t *testing.T, template string, opts Options) *HTTPFetcher {
	t.Helper()
	opts.URLTemplate = template
	fetcher, err := NewHTTPFetcher(&http.Client{Timeout: 5 * time.Second}, opts)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return fetcher
}

func mustCode(t *testing.T, raw string) code.Code {
	t.Helper()
	c, err := code.Parse(raw)
	if err != nil {
		t.Fatalf("parse code %q: %v", raw, err)
	}
	return c
}
