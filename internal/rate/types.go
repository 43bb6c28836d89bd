package rate

import "time"

// Window is a vendor rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Day
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	if w == Day {
		return 24 * time.Hour
	}
	return time.Minute
}

// Headers names the response headers that report the remaining budget.
type Headers struct {
	LimitMinute     string
	RemainingMinute string
	LimitDay        string
	RemainingDay    string
	RetryAfter      string
}

// StandardHeaders is the mapping used by the Electrolux API gateway.
func StandardHeaders() Headers {
	return Headers{
		LimitMinute:     "X-RateLimit-Limit-minute",
		RemainingMinute: "X-RateLimit-Remaining-minute",
		LimitDay:        "X-RateLimit-Limit-day",
		RemainingDay:    "X-RateLimit-Remaining-day",
		RetryAfter:      "Retry-After",
	}
}

// Config declares the budget for one upstream. A zero limit leaves that
// window unbounded.
type Config struct {
	Provider  string
	PerMinute int
	PerDay    int
	// CacheTTL keeps successful GET responses to answer while blocked.
	CacheTTL time.Duration
	Headers  Headers
	// Exempt requests bypass the budget but still feed header observations.
	Exempt func(method, path string) bool
}

func (c Config) limits() map[Window]int {
	out := make(map[Window]int)
	if c.PerMinute > 0 {
		out[Minute] = c.PerMinute
	}
	if c.PerDay > 0 {
		out[Day] = c.PerDay
	}
	return out
}

// Decision is the outcome of a budget check.
type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}
