package electrolux

import "github.com/prometheus/client_golang/prometheus"

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elxbridge_api_requests_total",
			Help: "Electrolux API requests by route and outcome",
		},
		[]string{"route", "outcome"},
	)
	refreshSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elxbridge_token_refresh_success_total",
			Help: "Successful access token refreshes",
		},
	)
	refreshFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elxbridge_token_refresh_failure_total",
			Help: "Failed access token refreshes",
		},
	)
	persistFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elxbridge_token_persist_failure_total",
			Help: "Refreshed tokens that could not be persisted",
		},
	)
	tokenExpiry = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "elxbridge_token_expiry_timestamp_seconds",
			Help: "Expiration of the current access token (unix seconds)",
		},
	)
)

// MetricsCollectors returns the collectors owned by the API client.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		apiRequests,
		refreshSuccess,
		refreshFailure,
		persistFailure,
		tokenExpiry,
	}
}
