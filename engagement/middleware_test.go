package engagement

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace-engine/engagement/infra"
)

func TestFloodGuard_AllowsThenRejectsSameUser(t *testing.T) {
	store := infra.NewFloodStore(0.02, 1)

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := FloodGuard(FloodOptions{
		Store:               store,
		RetryAfter:          1 * time.Second,
		AddRateLimitHeaders: true,
	})(next)

	r1 := httptest.NewRequest(http.MethodGet, "http://example/v1/browse", nil)
	r1.Header.Set(UserHeader, "42")
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if got := w1.Header().Get("X-RateLimit-Key"); got != "user:42" {
		t.Fatalf("expected X-RateLimit-Key=user:42, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-RPS"); got != "0.02" {
		t.Fatalf("expected X-RateLimit-RPS=0.02, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Burst"); got != "1" {
		t.Fatalf("expected X-RateLimit-Burst=1, got %q", got)
	}

	// segunda deve bloquear (burst=1 e rps bem baixo)
	r2 := httptest.NewRequest(http.MethodGet, "http://example/v1/browse", nil)
	r2.Header.Set(UserHeader, "42")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got == "" {
		t.Fatalf("expected Retry-After header to be set")
	}
	if calls != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls)
	}
}

func TestFloodGuard_UsersHaveSeparateBuckets(t *testing.T) {
	store := infra.NewFloodStore(0.02, 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := FloodGuard(FloodOptions{Store: store})(next)

	for _, user := range []string{"1", "2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set(UserHeader, user)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for user %s, got %d", user, w.Code)
		}
	}
}

func TestFloodGuard_RetryAfterUsesSecondsAndRecordsDenial(t *testing.T) {
	store := infra.NewFloodStore(0.02, 1)
	stats := infra.NewMemoryStatsStore(infra.WithTrackUsers(true))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := FloodGuard(FloodOptions{
		Store:      store,
		Stats:      stats,
		RetryAfter: 2500 * time.Millisecond,
	})(next)

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set(UserHeader, "7")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if i == 1 {
			if w.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", w.Code)
			}
			if got := strings.TrimSpace(w.Header().Get("Retry-After")); got != "2" {
				// int(2.5s.Seconds()) == 2
				t.Fatalf("expected Retry-After=2, got %q", got)
			}
		}
	}

	if got := stats.Total().Denied; got != 1 {
		t.Fatalf("expected one denied event, got %d", got)
	}
	if got := stats.ByUser()[7].Denied; got != 1 {
		t.Fatalf("expected denial attributed to user 7, got %d", got)
	}
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	got := w.Header().Get(RequestIDHeader)
	if got == "" || got != seen {
		t.Fatalf("expected generated id in header and context, got header=%q ctx=%q", got, seen)
	}

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected client id to be kept, got %q", got)
	}

	if RequestIDFrom(context.Background()) != "" {
		t.Fatalf("expected empty id outside middleware")
	}
}
