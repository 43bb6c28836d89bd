// Package entity translates appliance state into host-facing entities and
// user actions into appliance commands.
package entity

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/hub"
)

type Kind string

const (
	KindClimate Kind = "climate"
	KindFan     Kind = "fan"
	KindSensor  Kind = "sensor"
	KindSwitch  Kind = "switch"
)

var (
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrInvalidValue      = errors.New("invalid value")
)

// Commander sends a command and reports whether the API accepted it.
type Commander interface {
	SendCommand(ctx context.Context, applianceID string, cmd electrolux.Command) bool
}

// Deps are shared by every entity built for a session.
type Deps struct {
	Commander Commander
	Notifier  hub.Notifier
	Now       func() time.Time
}

// Entity is one host-facing view of an appliance.
type Entity interface {
	hub.Observer
	ID() string
	Name() string
	Kind() Kind
	Available() bool
	Snapshot() Snapshot
	// Control runs a named user action. The bool reports whether the
	// appliance accepted the resulting command.
	Control(ctx context.Context, action string, value any) (bool, error)
}

// Snapshot is a point-in-time rendering of an entity for sinks and APIs.
type Snapshot struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	ApplianceID string         `json:"appliance_id"`
	Available   bool           `json:"available"`
	State       string         `json:"state"`
	Value       *float64       `json:"value,omitempty"`
	Unit        string         `json:"unit,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

type base struct {
	mu        sync.Mutex
	id        string
	name      string
	appliance electrolux.Appliance
	info      *electrolux.ApplianceInfo
	state     *electrolux.ApplianceState
	deps      Deps
}

func (b *base) init(id, name string, appliance electrolux.Appliance, info *electrolux.ApplianceInfo, state *electrolux.ApplianceState, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if state == nil {
		state = &electrolux.ApplianceState{ApplianceID: appliance.ID}
	}
	b.id = id
	b.name = name
	b.appliance = appliance
	b.info = info
	b.state = state
	b.deps = deps
}

func (b *base) ID() string          { return b.id }
func (b *base) Name() string        { return b.name }
func (b *base) ApplianceID() string { return b.appliance.ID }

func (b *base) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Connected()
}

// ApplyState replaces the cached state with a fresh poll result.
func (b *base) ApplyState(state *electrolux.ApplianceState) error {
	if state == nil {
		return errors.New("nil appliance state")
	}
	if state.ApplianceID != b.appliance.ID {
		return errors.Errorf("state for appliance %s delivered to %s", state.ApplianceID, b.appliance.ID)
	}
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
	return nil
}

// dispatch sends cmd and applies mutate to the cached state only when the
// API accepted it. Callers hold b.mu.
func (b *base) dispatch(ctx context.Context, cmd electrolux.Command, mutate func(r *electrolux.ReportedProperties)) bool {
	if b.deps.Commander == nil {
		return false
	}
	if !b.deps.Commander.SendCommand(ctx, b.appliance.ID, cmd) {
		return false
	}
	if mutate != nil {
		mutate(&b.state.Reported)
	}
	return true
}

// changed notifies the host after a successful command. Callers must not hold b.mu.
func (b *base) changed(o hub.Observer, ok bool) bool {
	if ok && b.deps.Notifier != nil {
		b.deps.Notifier.StateChanged(o)
	}
	return ok
}

func (b *base) snapshot(kind Kind) Snapshot {
	return Snapshot{
		ID:          b.id,
		Name:        b.name,
		Kind:        kind,
		ApplianceID: b.appliance.ID,
		Available:   b.state.Connected(),
		Attributes:  map[string]any{},
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errors.Wrapf(ErrInvalidValue, "expected a number, got %T", value)
	}
}

func toString(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", errors.Wrapf(ErrInvalidValue, "expected a string, got %T", value)
	}
	return s, nil
}
