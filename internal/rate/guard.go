package rate

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitError is returned when the guard blocks a call.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

func (b *bucket) take(now time.Time, window time.Duration) bool {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		refill := float64(b.capacity) / window.Seconds()
		b.tokens = min(float64(b.capacity), b.tokens+elapsed*refill)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

type cacheEntry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// Guard enforces a request budget for one upstream.
type Guard struct {
	cfg Config
	now func() time.Time

	mu sync.Mutex
	// guarded by mu
	buckets    map[Window]*bucket
	remaining  map[Window]int
	hasHeaders map[Window]bool
	cooldown   time.Time
	cache      map[string]cacheEntry
}

// NewGuard builds a guard with full buckets.
func NewGuard(cfg Config) *Guard {
	return newGuard(cfg, time.Now)
}

func newGuard(cfg Config, now func() time.Time) *Guard {
	if cfg.Provider == "" {
		cfg.Provider = "electrolux"
	}
	if cfg.Headers == (Headers{}) {
		cfg.Headers = StandardHeaders()
	}
	g := &Guard{
		cfg:        cfg,
		now:        now,
		buckets:    make(map[Window]*bucket),
		remaining:  make(map[Window]int),
		hasHeaders: make(map[Window]bool),
		cache:      make(map[string]cacheEntry),
	}
	start := now()
	for window, limit := range cfg.limits() {
		g.buckets[window] = &bucket{capacity: limit, tokens: float64(limit), last: start}
	}
	return g
}

// Wrap returns base guarded by a new Guard built from cfg.
func Wrap(cfg Config, base http.RoundTripper) http.RoundTripper {
	return NewGuard(cfg).RoundTripper(base)
}

// RoundTripper returns base guarded by g.
func (g *Guard) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{base: base, guard: g}
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	g := rt.guard
	exempt := g.cfg.Exempt != nil && g.cfg.Exempt(req.Method, req.URL.Path)
	if !exempt {
		decision := g.ShouldCall()
		if !decision.Allowed {
			if cached := g.cachedResponse(req); cached != nil {
				blockedTotal.WithLabelValues(g.cfg.Provider, decision.Reason, "cache").Inc()
				return cached, nil
			}
			blockedTotal.WithLabelValues(g.cfg.Provider, decision.Reason, "error").Inc()
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, RateLimitError{Provider: g.cfg.Provider, Reason: decision.Reason, RetryAt: decision.RetryAt}
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	g.RecordResponse(resp.StatusCode, resp.Header)
	return g.maybeCache(req, resp)
}

// ShouldCall consumes one request from every bounded window.
func (g *Guard) ShouldCall() Decision {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	// check every window before consuming so a refusal costs nothing
	for _, window := range []Window{Minute, Day} {
		if g.hasHeaders[window] && g.remaining[window] <= 0 {
			return Decision{Allowed: false, Reason: "budget", RetryAt: now.Add(window.Duration() / 60)}
		}
		b, ok := g.buckets[window]
		if !ok {
			continue
		}
		probe := *b
		if !probe.take(now, window.Duration()) {
			return Decision{Allowed: false, Reason: "budget", RetryAt: b.last.Add(window.Duration() / time.Duration(b.capacity))}
		}
	}
	for window, b := range g.buckets {
		b.take(now, window.Duration())
	}
	for window := range g.hasHeaders {
		g.remaining[window]--
	}
	return Decision{Allowed: true}
}

// RecordResponse applies Retry-After and remaining-budget headers.
func (g *Guard) RecordResponse(status int, header http.Header) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	lastStatusGauge.WithLabelValues(g.cfg.Provider).Set(float64(status))

	if retry := headerInt(header, g.cfg.Headers.RetryAfter); retry > 0 {
		g.cooldown = now.Add(time.Duration(retry) * time.Second)
		retryAfterGauge.WithLabelValues(g.cfg.Provider).Set(float64(retry))
	} else if status == http.StatusTooManyRequests {
		g.cooldown = now.Add(time.Minute)
		retryAfterGauge.WithLabelValues(g.cfg.Provider).Set(60)
	}

	update := func(window Window, remaining int) {
		if remaining < 0 {
			return
		}
		g.remaining[window] = remaining
		g.hasHeaders[window] = true
		remainingGauge.WithLabelValues(g.cfg.Provider, window.String()).Set(float64(remaining))
	}
	update(Minute, headerInt(header, g.cfg.Headers.RemainingMinute))
	update(Day, headerInt(header, g.cfg.Headers.RemainingDay))
}

func (g *Guard) cachedResponse(req *http.Request) *http.Response {
	if g.cfg.CacheTTL <= 0 || req.Method != http.MethodGet {
		return nil
	}
	now := g.now()
	g.mu.Lock()
	entry, ok := g.cache[cacheKey(req)]
	g.mu.Unlock()
	if !ok || now.After(entry.expires) {
		return nil
	}
	return cloneResponse(req, entry.status, entry.header, entry.body)
}

func (g *Guard) maybeCache(req *http.Request, resp *http.Response) (*http.Response, error) {
	if g.cfg.CacheTTL <= 0 || req.Method != http.MethodGet || resp.StatusCode/100 != 2 {
		return resp, nil
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[cacheKey(req)] = cacheEntry{
		status:  resp.StatusCode,
		header:  resp.Header.Clone(),
		body:    body,
		expires: g.now().Add(g.cfg.CacheTTL),
	}
	g.mu.Unlock()

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := h.Get(key)
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

func cacheKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

func cloneResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
