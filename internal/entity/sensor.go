package entity

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
)

// SensorSpec describes one reading exposed as a sensor.
type SensorSpec struct {
	Key         string
	Label       string
	Unit        string
	DeviceClass string
	Read        func(r electrolux.ReportedProperties) *float64
	Extra       func(value *float64) map[string]any
}

const (
	co2Nominal   = 400.0
	co2HighLevel = 1000.0
)

// WellA7Sensors are the readings a Well A7 purifier reports.
var WellA7Sensors = []SensorSpec{
	{Key: "pm1", Label: "PM1", Unit: "µg/m³", DeviceClass: "pm1", Read: func(r electrolux.ReportedProperties) *float64 { return r.PM1 }},
	{Key: "pm25", Label: "PM2.5", Unit: "µg/m³", DeviceClass: "pm25", Read: func(r electrolux.ReportedProperties) *float64 { return r.PM25 }},
	{Key: "pm10", Label: "PM10", Unit: "µg/m³", DeviceClass: "pm10", Read: func(r electrolux.ReportedProperties) *float64 { return r.PM10 }},
	{Key: "tvoc", Label: "TVOC", Unit: "ppb", DeviceClass: "volatile_organic_compounds_parts", Read: func(r electrolux.ReportedProperties) *float64 { return r.TVOC }},
	{Key: "humidity", Label: "Humidity", Unit: "%", DeviceClass: "humidity", Read: func(r electrolux.ReportedProperties) *float64 { return r.Humidity }},
	{Key: "temperature", Label: "Temperature", Unit: "°C", DeviceClass: "temperature", Read: func(r electrolux.ReportedProperties) *float64 { return r.Temperature }},
	{Key: "co2", Label: "CO2", Unit: "ppm", DeviceClass: "carbon_dioxide", Read: func(r electrolux.ReportedProperties) *float64 { return r.ECO2 }, Extra: co2Status},
}

// co2Status treats a missing reading as the outdoor baseline.
func co2Status(value *float64) map[string]any {
	level := co2Nominal
	if value != nil && *value != 0 {
		level = *value
	}
	if level > co2HighLevel {
		return map[string]any{"status": "high"}
	}
	return map[string]any{"status": "normal"}
}

// Sensor is a read-only view of one reading.
type Sensor struct {
	base
	spec SensorSpec
}

func NewSensor(spec SensorSpec, appliance electrolux.Appliance, info *electrolux.ApplianceInfo, state *electrolux.ApplianceState, deps Deps) *Sensor {
	s := &Sensor{spec: spec}
	s.init("electrolux_"+spec.Key+"_"+appliance.ID, appliance.Name+" "+spec.Label, appliance, info, state, deps)
	return s
}

func (s *Sensor) Kind() Kind { return KindSensor }

// Value returns the current reading or nil when absent.
func (s *Sensor) Value() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec.Read(s.state.Reported)
}

func (s *Sensor) Control(_ context.Context, action string, _ any) (bool, error) {
	return false, errors.Wrap(ErrUnsupportedAction, action)
}

func (s *Sensor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := s.spec.Read(s.state.Reported)
	snap := s.snapshot(KindSensor)
	snap.Unit = s.spec.Unit
	snap.Attributes["device_class"] = s.spec.DeviceClass
	if value != nil {
		v := *value
		snap.Value = &v
		snap.State = strconv.FormatFloat(v, 'f', -1, 64)
	} else {
		snap.State = "unknown"
	}
	if s.spec.Extra != nil {
		for k, v := range s.spec.Extra(value) {
			snap.Attributes[k] = v
		}
	}
	return snap
}
