// Package platform turns discovered appliances into entities. Each
// platform claims a set of appliance types and builds its entities from a
// single state and capability probe.
package platform

import (
	"context"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/hub"
)

// HealthStatus is the bridge health reported over HTTP and gRPC.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Target is one appliance with the state and capabilities probed at setup.
type Target struct {
	Appliance electrolux.Appliance
	Info      *electrolux.ApplianceInfo
	State     *electrolux.ApplianceState
}

// Platform is the compile-time contract for an entity family.
type Platform interface {
	ID() string
	ApplianceTypes() []string
	Build(target Target, deps entity.Deps) []entity.Entity
}

// Backend is what setup needs from a hub session.
type Backend interface {
	Degraded() bool
	Discover(ctx context.Context) []electrolux.Appliance
	FetchState(ctx context.Context, applianceID string) *electrolux.ApplianceState
	ApplianceInfo(ctx context.Context, applianceID string) *electrolux.ApplianceInfo
	SendCommand(ctx context.Context, applianceID string, cmd electrolux.Command) bool
	Register(observers ...hub.Observer)
}

// Defaults returns every platform the bridge ships.
func Defaults() []Platform {
	return []Platform{Climate{}, Fan{}, Sensor{}, Switch{}}
}

func handles(p Platform, applianceType string) bool {
	for _, t := range p.ApplianceTypes() {
		if t == applianceType {
			return true
		}
	}
	return false
}

// Climate builds one climate entity per Comfort 600.
type Climate struct{}

func (Climate) ID() string               { return "climate" }
func (Climate) ApplianceTypes() []string { return []string{"Azul"} }

func (Climate) Build(t Target, deps entity.Deps) []entity.Entity {
	return []entity.Entity{entity.NewClimate(t.Appliance, t.Info, t.State, deps)}
}

// Fan builds the purifier fan.
type Fan struct{}

func (Fan) ID() string               { return "fan" }
func (Fan) ApplianceTypes() []string { return []string{"WELLA7"} }

func (Fan) Build(t Target, deps entity.Deps) []entity.Entity {
	return []entity.Entity{entity.NewFan(t.Appliance, t.Info, t.State, deps)}
}

// Sensor builds one entity per purifier reading.
type Sensor struct{}

func (Sensor) ID() string               { return "sensor" }
func (Sensor) ApplianceTypes() []string { return []string{"WELLA7"} }

func (Sensor) Build(t Target, deps entity.Deps) []entity.Entity {
	out := make([]entity.Entity, 0, len(entity.WellA7Sensors))
	for _, spec := range entity.WellA7Sensors {
		out = append(out, entity.NewSensor(spec, t.Appliance, t.Info, t.State, deps))
	}
	return out
}

// Switch builds the purifier ionizer switch.
type Switch struct{}

func (Switch) ID() string               { return "switch" }
func (Switch) ApplianceTypes() []string { return []string{"WELLA7"} }

func (Switch) Build(t Target, deps entity.Deps) []entity.Entity {
	return []entity.Entity{entity.NewIonizerSwitch(t.Appliance, t.Info, t.State, deps)}
}
