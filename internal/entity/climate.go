package entity

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
)

const (
	HVACOff  = "off"
	HVACAuto = "auto"
	HVACCool = "cool"
	HVACHeat = "heat"

	PresetLocked   = "Locked"
	PresetUnlocked = "Unlocked"

	// a set-temperature call right after turning off would switch the unit back on
	turnOffGrace = time.Second
)

// Climate drives a Comfort 600 air conditioner.
type Climate struct {
	base
	lastTurnOff time.Time
}

func NewClimate(appliance electrolux.Appliance, info *electrolux.ApplianceInfo, state *electrolux.ApplianceState, deps Deps) *Climate {
	c := &Climate{}
	c.init("electrolux_climate_"+appliance.ID, appliance.Name, appliance, info, state, deps)
	return c
}

func (c *Climate) Kind() Kind { return KindClimate }

// HVACMode is off unless the unit is running.
func (c *Climate) HVACMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hvacModeLocked()
}

func (c *Climate) hvacModeLocked() string {
	r := c.state.Reported
	if r.ApplianceState != electrolux.RunStateRunning {
		return HVACOff
	}
	switch r.Mode {
	case electrolux.ModeCool:
		return HVACCool
	case electrolux.ModeHeat:
		return HVACHeat
	default:
		return HVACAuto
	}
}

// IsOn reports a connected, running unit.
func (c *Climate) IsOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Connected() && c.state.Reported.ApplianceState == electrolux.RunStateRunning
}

// TemperatureRange returns min, max and step from the targetTemperatureC capability.
func (c *Climate) TemperatureRange() (float64, float64, float64) {
	minTemp, maxTemp, step := 16.0, 32.0, 1.0
	if capability, ok := c.info.Capability("targetTemperatureC"); ok {
		if capability.Min != nil {
			minTemp = *capability.Min
		}
		if capability.Max != nil {
			maxTemp = *capability.Max
		}
		if capability.Step > 0 {
			step = capability.Step
		}
	}
	return minTemp, maxTemp, step
}

// SupportsSwing reports whether the appliance exposes verticalSwing.
func (c *Climate) SupportsSwing() bool {
	_, ok := c.info.Capability("verticalSwing")
	return ok
}

func (c *Climate) TurnOn(ctx context.Context) bool {
	c.mu.Lock()
	ok := c.dispatch(ctx, electrolux.Command{"executeCommand": "ON"}, func(r *electrolux.ReportedProperties) {
		r.ApplianceState = electrolux.RunStateRunning
	})
	c.mu.Unlock()
	return c.changed(c, ok)
}

// TurnOff is a no-op when the unit already reports OFF.
func (c *Climate) TurnOff(ctx context.Context) bool {
	c.mu.Lock()
	if c.state.Reported.ApplianceState == electrolux.RunStateOff {
		c.lastTurnOff = c.deps.Now()
		c.mu.Unlock()
		return true
	}
	ok := c.dispatch(ctx, electrolux.Command{"executeCommand": "OFF"}, func(r *electrolux.ReportedProperties) {
		r.ApplianceState = electrolux.RunStateOff
	})
	if ok {
		c.lastTurnOff = c.deps.Now()
	}
	c.mu.Unlock()
	return c.changed(c, ok)
}

func (c *Climate) SetHVACMode(ctx context.Context, mode string) bool {
	var wire electrolux.Mode
	switch strings.ToLower(mode) {
	case HVACOff:
		return c.TurnOff(ctx)
	case HVACCool:
		wire = electrolux.ModeCool
	case HVACHeat:
		wire = electrolux.ModeHeat
	default:
		wire = electrolux.ModeAuto
	}

	c.mu.Lock()
	ok := c.dispatch(ctx, electrolux.Command{"executeCommand": "ON", "mode": string(wire)}, func(r *electrolux.ReportedProperties) {
		r.ApplianceState = electrolux.RunStateRunning
		r.Mode = wire
	})
	c.mu.Unlock()
	return c.changed(c, ok)
}

// SetTemperature is ignored within a second of a turn-off.
func (c *Climate) SetTemperature(ctx context.Context, celsius float64) bool {
	c.mu.Lock()
	if !c.lastTurnOff.IsZero() && c.deps.Now().Sub(c.lastTurnOff) < turnOffGrace {
		c.mu.Unlock()
		return false
	}
	ok := c.dispatch(ctx, electrolux.Command{"targetTemperatureC": celsius}, func(r *electrolux.ReportedProperties) {
		r.ApplianceState = electrolux.RunStateRunning
		r.TargetTemperatureC = &celsius
	})
	c.mu.Unlock()
	return c.changed(c, ok)
}

// SetPreset locks or unlocks the panel. Ignored while the unit is off.
func (c *Climate) SetPreset(ctx context.Context, preset string) bool {
	c.mu.Lock()
	if c.state.Reported.ApplianceState == electrolux.RunStateOff {
		c.mu.Unlock()
		return false
	}
	locked := preset == PresetLocked
	ok := c.dispatch(ctx, electrolux.Command{"uiLockMode": locked}, func(r *electrolux.ReportedProperties) {
		r.UILockMode = &locked
	})
	c.mu.Unlock()
	return c.changed(c, ok)
}

// SetSwing toggles vertical swing. Ignored while the unit is off.
func (c *Climate) SetSwing(ctx context.Context, swing string) bool {
	c.mu.Lock()
	if c.state.Reported.ApplianceState == electrolux.RunStateOff {
		c.mu.Unlock()
		return false
	}
	toggle := electrolux.ToggleOff
	if strings.EqualFold(swing, "on") {
		toggle = electrolux.ToggleOn
	}
	ok := c.dispatch(ctx, electrolux.Command{"verticalSwing": string(toggle)}, func(r *electrolux.ReportedProperties) {
		r.VerticalSwing = toggle
	})
	c.mu.Unlock()
	return c.changed(c, ok)
}

func (c *Climate) Control(ctx context.Context, action string, value any) (bool, error) {
	switch action {
	case "turn_on":
		return c.TurnOn(ctx), nil
	case "turn_off":
		return c.TurnOff(ctx), nil
	case "set_hvac_mode":
		mode, err := toString(value)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(mode) {
		case HVACOff, HVACAuto, HVACCool, HVACHeat:
		default:
			return false, errors.Wrapf(ErrInvalidValue, "hvac mode %q", mode)
		}
		return c.SetHVACMode(ctx, mode), nil
	case "set_temperature":
		celsius, err := toFloat(value)
		if err != nil {
			return false, err
		}
		minTemp, maxTemp, _ := c.TemperatureRange()
		if celsius < minTemp || celsius > maxTemp {
			return false, errors.Wrapf(ErrInvalidValue, "temperature %.1f outside %.1f-%.1f", celsius, minTemp, maxTemp)
		}
		return c.SetTemperature(ctx, celsius), nil
	case "set_preset_mode":
		preset, err := toString(value)
		if err != nil {
			return false, err
		}
		if preset != PresetLocked && preset != PresetUnlocked {
			return false, errors.Wrapf(ErrInvalidValue, "preset %q", preset)
		}
		return c.SetPreset(ctx, preset), nil
	case "set_swing_mode":
		if !c.SupportsSwing() {
			return false, errors.Wrap(ErrUnsupportedAction, action)
		}
		swing, err := toString(value)
		if err != nil {
			return false, err
		}
		return c.SetSwing(ctx, swing), nil
	default:
		return false, errors.Wrap(ErrUnsupportedAction, action)
	}
}

func (c *Climate) Snapshot() Snapshot {
	minTemp, maxTemp, step := c.TemperatureRange()
	swing := c.SupportsSwing()

	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.state.Reported

	snap := c.snapshot(KindClimate)
	snap.State = c.hvacModeLocked()
	snap.Value = r.AmbientTemperatureC
	snap.Unit = "°C"
	snap.Attributes["hvac_modes"] = []string{HVACAuto, HVACCool, HVACHeat, HVACOff}
	snap.Attributes["min_temp"] = minTemp
	snap.Attributes["max_temp"] = maxTemp
	snap.Attributes["target_temperature_step"] = step
	snap.Attributes["preset_modes"] = []string{PresetUnlocked, PresetLocked}
	if r.TargetTemperatureC != nil {
		snap.Attributes["target_temperature"] = *r.TargetTemperatureC
	}
	if r.AmbientTemperatureC != nil {
		snap.Attributes["current_temperature"] = *r.AmbientTemperatureC
	}
	if r.UILockMode != nil && *r.UILockMode {
		snap.Attributes["preset_mode"] = PresetLocked
	} else {
		snap.Attributes["preset_mode"] = PresetUnlocked
	}
	if swing {
		snap.Attributes["swing_modes"] = []string{"off", "on"}
		snap.Attributes["swing_mode"] = onOff(r.VerticalSwing != electrolux.ToggleOff)
	}
	if r.FanSpeedSetting != "" {
		snap.Attributes["fan_speed_setting"] = strings.ToLower(string(r.FanSpeedSetting))
	}
	if r.FilterState != "" {
		snap.Attributes["filter_state"] = strings.ToLower(string(r.FilterState))
	}
	if r.SleepMode != "" {
		snap.Attributes["sleep_mode"] = strings.ToLower(string(r.SleepMode))
	}
	return snap
}
