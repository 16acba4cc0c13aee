package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRobotsHandler(t *testing.T, body string, status int) (*RobotsHandler, string, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testPolicy(1), testLogger())
	rl := NewRateLimiter(time.Millisecond, 0, testLogger())
	return NewRobotsHandler(fetcher, rl, "bizdir-test", testLogger()), server.URL, hits
}

func TestRobotsHandler_Allowed(t *testing.T) {
	rh, base, hits := newTestRobotsHandler(t, "User-agent: *\nDisallow: /zoeken/private\n", http.StatusOK)
	ctx := context.Background()

	if !rh.Allowed(ctx, base+"/nl/zoeken/bakker/1") {
		t.Error("expected listing path to be allowed")
	}
	if rh.Allowed(ctx, base+"/zoeken/private/1") {
		t.Error("expected disallowed path to be rejected")
	}
	if hits.Load() != 1 {
		t.Errorf("robots.txt fetched %d times, want 1 (cached)", hits.Load())
	}
}

func TestRobotsHandler_MissingRobotsAllowsAll(t *testing.T) {
	rh, base, _ := newTestRobotsHandler(t, "", http.StatusNotFound)
	if !rh.Allowed(context.Background(), base+"/anything") {
		t.Error("expected missing robots.txt to allow access")
	}
}

func TestRobotsHandler_InvalidURL(t *testing.T) {
	rh, _, _ := newTestRobotsHandler(t, "", http.StatusOK)
	if rh.Allowed(context.Background(), "://bad") {
		t.Error("expected unparseable URL to be disallowed")
	}
}
