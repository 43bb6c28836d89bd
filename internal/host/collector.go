package host

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/electrolux-bridge/internal/entity"
)

// EntityCollector exports entity snapshots at scrape time.
type EntityCollector struct {
	registry *Registry

	mu        sync.Mutex
	value     *prometheus.GaugeVec
	available *prometheus.GaugeVec
	on        *prometheus.GaugeVec
	count     prometheus.Gauge
}

func NewEntityCollector(registry *Registry) *EntityCollector {
	return &EntityCollector{
		registry: registry,
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "elxbridge_entity_value",
			Help: "Numeric entity reading (sensor value, fan percentage, room temperature)",
		}, []string{"entity_id", "name", "kind", "unit"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "elxbridge_entity_available",
			Help: "Whether the entity's appliance is connected (1=connected, 0=not)",
		}, []string{"entity_id", "kind"}),
		on: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "elxbridge_entity_on",
			Help: "Whether a controllable entity is on (1=on, 0=off)",
		}, []string{"entity_id", "kind", "state"}),
		count: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "elxbridge_entities",
			Help: "Number of entities built for the session",
		}),
	}
}

func (c *EntityCollector) Describe(ch chan<- *prometheus.Desc) {
	c.value.Describe(ch)
	c.available.Describe(ch)
	c.on.Describe(ch)
	c.count.Describe(ch)
}

func (c *EntityCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value.Reset()
	c.available.Reset()
	c.on.Reset()

	snaps := c.registry.Snapshots()
	c.count.Set(float64(len(snaps)))
	for _, snap := range snaps {
		kind := string(snap.Kind)
		c.available.WithLabelValues(snap.ID, kind).Set(boolGauge(snap.Available))
		if snap.Value != nil {
			c.value.WithLabelValues(snap.ID, snap.Name, kind, snap.Unit).Set(*snap.Value)
		}
		if snap.Kind != entity.KindSensor {
			c.on.WithLabelValues(snap.ID, kind, snap.State).Set(boolGauge(snap.State != "off"))
		}
	}

	c.value.Collect(ch)
	c.available.Collect(ch)
	c.on.Collect(ch)
	c.count.Collect(ch)
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
