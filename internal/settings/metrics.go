package settings

import "github.com/prometheus/client_golang/prometheus"

var remotePersistOK = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "elxbridge_settings_remote_persist_ok",
		Help: "Settings blob mirror health (1=ok, 0=error)",
	},
)

func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{remotePersistOK}
}
