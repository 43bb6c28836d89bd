package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	remainingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "elxbridge_rate_limit_remaining",
			Help: "Remaining requests in the upstream rate-limit window",
		},
		[]string{"provider", "window"},
	)
	retryAfterGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "elxbridge_rate_limit_retry_after_seconds",
			Help: "Retry-After seconds last announced by the upstream",
		},
		[]string{"provider"},
	)
	lastStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "elxbridge_rate_limit_last_status_code",
			Help: "Last HTTP status code observed by the rate-limit guard",
		},
		[]string{"provider"},
	)
	blockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elxbridge_rate_limit_blocked_total",
			Help: "Requests blocked by the rate-limit guard",
		},
		[]string{"provider", "reason", "served"},
	)
)

// MetricsCollectors exposes the rate-limit collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		remainingGauge,
		retryAfterGauge,
		lastStatusGauge,
		blockedTotal,
	}
}
