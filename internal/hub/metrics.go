package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elxbridge_poll_ticks_total",
			Help: "Polling ticks by result",
		},
		[]string{"result"},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elxbridge_poll_duration_seconds",
			Help:    "Duration of a full polling tick",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
	stateFetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elxbridge_state_fetch_failures_total",
			Help: "Appliance state fetches that failed",
		},
	)
	observerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elxbridge_observer_failures_total",
			Help: "Observers that failed to apply a state",
		},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elxbridge_commands_total",
			Help: "Appliance commands by result",
		},
		[]string{"result"},
	)
)

// MetricsCollectors returns the collectors owned by the hub.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		ticksTotal,
		tickDuration,
		stateFetchFailures,
		observerFailures,
		commandsTotal,
	}
}
