package rate

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func upstream(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return client.Do(req)
}

func TestPerMinuteBudget(t *testing.T) {
	srv, calls := upstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := newClock()
	guard := newGuard(Config{PerMinute: 2}, c.now)
	client := &http.Client{Transport: guard.RoundTripper(nil)}

	for i := 0; i < 2; i++ {
		resp, err := get(t, client, srv.URL)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		resp.Body.Close()
	}
	_, err := get(t, client, srv.URL)
	var rle RateLimitError
	if !errors.As(err, &rle) || rle.Reason != "budget" {
		t.Fatalf("expected budget error, got %v", err)
	}
	if atomic.LoadInt32(calls) != 2 {
		t.Fatalf("blocked call reached upstream")
	}

	c.t = c.t.Add(30 * time.Second)
	resp, err := get(t, client, srv.URL)
	if err != nil {
		t.Fatalf("expected refill after 30s: %v", err)
	}
	resp.Body.Close()
}

func TestDayWindowRefusalDoesNotConsumeMinute(t *testing.T) {
	c := newClock()
	guard := newGuard(Config{PerMinute: 10, PerDay: 1}, c.now)
	if !guard.ShouldCall().Allowed {
		t.Fatalf("first call must pass")
	}
	for i := 0; i < 3; i++ {
		if guard.ShouldCall().Allowed {
			t.Fatalf("day budget exhausted")
		}
	}
	if tokens := guard.buckets[Minute].tokens; tokens != 9 {
		t.Fatalf("refused calls must not consume minute tokens, got %.1f", tokens)
	}
}

func TestUnlimitedConfigAllowsEverything(t *testing.T) {
	guard := newGuard(Config{}, newClock().now)
	for i := 0; i < 100; i++ {
		if !guard.ShouldCall().Allowed {
			t.Fatalf("call %d refused without limits", i)
		}
	}
}

func TestRetryAfterStartsCooldown(t *testing.T) {
	srv, calls := upstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newClock()
	guard := newGuard(Config{}, c.now)
	client := &http.Client{Transport: guard.RoundTripper(nil)}

	resp, err := get(t, client, srv.URL)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	resp.Body.Close()

	_, err = get(t, client, srv.URL)
	var rle RateLimitError
	if !errors.As(err, &rle) || rle.Reason != "cooldown" {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if !rle.RetryAt.Equal(c.t.Add(120 * time.Second)) {
		t.Fatalf("unexpected retry at %s", rle.RetryAt)
	}
	if !strings.Contains(rle.Error(), "retry at") {
		t.Fatalf("unexpected message %q", rle.Error())
	}

	c.t = c.t.Add(121 * time.Second)
	resp, err = get(t, client, srv.URL)
	if err != nil {
		t.Fatalf("cooldown should have expired: %v", err)
	}
	resp.Body.Close()
	if atomic.LoadInt32(calls) != 2 {
		t.Fatalf("expected two upstream calls, got %d", *calls)
	}
}

func TestRemainingHeadersBlockAtZero(t *testing.T) {
	guard := newGuard(Config{}, newClock().now)
	header := http.Header{}
	header.Set("X-RateLimit-Remaining-day", "1")
	guard.RecordResponse(http.StatusOK, header)

	if !guard.ShouldCall().Allowed {
		t.Fatalf("one request left")
	}
	if d := guard.ShouldCall(); d.Allowed || d.Reason != "budget" {
		t.Fatalf("expected budget refusal, got %+v", d)
	}
}

func TestExemptRequestsBypassBudget(t *testing.T) {
	srv, _ := upstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guard := newGuard(Config{
		PerMinute: 1,
		Exempt: func(method, path string) bool {
			return method == http.MethodPost && path == "/api/v1/token/refresh"
		},
	}, newClock().now)
	client := &http.Client{Transport: guard.RoundTripper(nil)}

	resp, err := get(t, client, srv.URL)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	resp.Body.Close()

	for i := 0; i < 3; i++ {
		resp, err := client.Post(srv.URL+"/api/v1/token/refresh", "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("refresh %d blocked: %v", i, err)
		}
		resp.Body.Close()
	}
}

func TestCachedResponseServedWhileBlocked(t *testing.T) {
	srv, calls := upstream(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"applianceId":"A1"}`)
	})
	c := newClock()
	guard := newGuard(Config{PerMinute: 1, CacheTTL: time.Minute}, c.now)
	client := &http.Client{Transport: guard.RoundTripper(nil)}

	for i := 0; i < 2; i++ {
		resp, err := get(t, client, srv.URL+"/state")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != `{"applianceId":"A1"}` {
			t.Fatalf("call %d: unexpected body %q", i, body)
		}
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("second call must be served from cache")
	}

	c.t = c.t.Add(2 * time.Minute)
	guard.mu.Lock()
	guard.cooldown = c.t.Add(time.Minute)
	guard.mu.Unlock()
	if _, err := get(t, client, srv.URL+"/state"); err == nil {
		t.Fatalf("expired cache entry must not be served")
	}
}
