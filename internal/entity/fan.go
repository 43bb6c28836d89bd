package entity

import (
	"context"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
)

const (
	PresetSmart  = "Smart"
	PresetManual = "Manual"

	defaultSpeedCount = 5
)

// Fan drives a Well A7 purifier's fan.
type Fan struct {
	base
}

func NewFan(appliance electrolux.Appliance, info *electrolux.ApplianceInfo, state *electrolux.ApplianceState, deps Deps) *Fan {
	f := &Fan{}
	f.init("electrolux_fan_"+appliance.ID, appliance.Name, appliance, info, state, deps)
	return f
}

func (f *Fan) Kind() Kind { return KindFan }

// SpeedCount is the Fanspeed capability maximum.
func (f *Fan) SpeedCount() int {
	if capability, ok := f.info.Capability("Fanspeed"); ok && capability.Max != nil && *capability.Max > 0 {
		return int(*capability.Max)
	}
	return defaultSpeedCount
}

// IsOn reports a connected purifier that is not powered off.
func (f *Fan) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Connected() && f.state.Reported.Workmode != electrolux.WorkmodePowerOff
}

// Preset is Smart in automatic mode and Manual otherwise.
func (f *Fan) Preset() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return presetFor(f.state.Reported.Workmode)
}

func presetFor(mode electrolux.Workmode) string {
	if mode == electrolux.WorkmodeAuto {
		return PresetSmart
	}
	return PresetManual
}

// Percentage is nil in Smart mode, where the purifier picks its own speed.
func (f *Fan) Percentage() *int {
	speedCount := f.SpeedCount()
	f.mu.Lock()
	defer f.mu.Unlock()
	return percentageFor(f.state.Reported, speedCount)
}

func percentageFor(r electrolux.ReportedProperties, speedCount int) *int {
	if r.Workmode == electrolux.WorkmodeAuto {
		return nil
	}
	pct := 0
	if r.FanSpeed != nil {
		pct = *r.FanSpeed * 100 / speedCount
	}
	return &pct
}

func (f *Fan) TurnOn(ctx context.Context) bool {
	return f.setWorkmode(ctx, electrolux.WorkmodeAuto)
}

func (f *Fan) TurnOff(ctx context.Context) bool {
	return f.setWorkmode(ctx, electrolux.WorkmodePowerOff)
}

func (f *Fan) SetPreset(ctx context.Context, preset string) bool {
	if preset == PresetSmart {
		return f.setWorkmode(ctx, electrolux.WorkmodeAuto)
	}
	return f.setWorkmode(ctx, electrolux.WorkmodeManual)
}

func (f *Fan) setWorkmode(ctx context.Context, mode electrolux.Workmode) bool {
	f.mu.Lock()
	ok := f.dispatch(ctx, electrolux.Command{"Workmode": mode.Wire()}, func(r *electrolux.ReportedProperties) {
		r.Workmode = mode
	})
	f.mu.Unlock()
	return f.changed(f, ok)
}

// SetPercentage only applies in Manual mode; zero turns the purifier off.
func (f *Fan) SetPercentage(ctx context.Context, percentage int) bool {
	if percentage <= 0 {
		return f.TurnOff(ctx)
	}
	speedCount := f.SpeedCount()
	speed := percentage * speedCount / 100
	if speed < 1 {
		speed = 1
	}

	f.mu.Lock()
	if f.state.Reported.Workmode != electrolux.WorkmodeManual {
		f.mu.Unlock()
		return false
	}
	ok := f.dispatch(ctx, electrolux.Command{"Fanspeed": speed}, func(r *electrolux.ReportedProperties) {
		r.FanSpeed = &speed
	})
	f.mu.Unlock()
	return f.changed(f, ok)
}

func (f *Fan) Control(ctx context.Context, action string, value any) (bool, error) {
	switch action {
	case "turn_on":
		return f.TurnOn(ctx), nil
	case "turn_off":
		return f.TurnOff(ctx), nil
	case "set_percentage":
		pct, err := toFloat(value)
		if err != nil {
			return false, err
		}
		if pct < 0 || pct > 100 {
			return false, errors.Wrapf(ErrInvalidValue, "percentage %.0f", pct)
		}
		return f.SetPercentage(ctx, int(pct)), nil
	case "set_preset_mode":
		preset, err := toString(value)
		if err != nil {
			return false, err
		}
		if preset != PresetSmart && preset != PresetManual {
			return false, errors.Wrapf(ErrInvalidValue, "preset %q", preset)
		}
		return f.SetPreset(ctx, preset), nil
	default:
		return false, errors.Wrap(ErrUnsupportedAction, action)
	}
}

func (f *Fan) Snapshot() Snapshot {
	speedCount := f.SpeedCount()

	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.state.Reported

	snap := f.snapshot(KindFan)
	snap.State = onOff(f.state.Connected() && r.Workmode != electrolux.WorkmodePowerOff)
	snap.Attributes["preset_modes"] = []string{PresetSmart, PresetManual}
	snap.Attributes["preset_mode"] = presetFor(r.Workmode)
	snap.Attributes["speed_count"] = speedCount
	if pct := percentageFor(r, speedCount); pct != nil {
		snap.Attributes["percentage"] = *pct
		v := float64(*pct)
		snap.Value = &v
		snap.Unit = "%"
	}
	if r.FanSpeed != nil {
		snap.Attributes["fan_speed"] = *r.FanSpeed
	}
	if r.FilterLife1 != nil {
		snap.Attributes["filter_life_1"] = *r.FilterLife1
	}
	if r.FilterType1 != 0 {
		snap.Attributes["filter_type_1"] = r.FilterType1.String()
	}
	if r.FilterLife2 != nil {
		snap.Attributes["filter_life_2"] = *r.FilterLife2
	}
	if r.FilterType2 != 0 {
		snap.Attributes["filter_type_2"] = r.FilterType2.String()
	}
	if r.UILight != nil {
		snap.Attributes["ui_light"] = *r.UILight
	}
	if r.SafetyLock != nil {
		snap.Attributes["safety_lock"] = *r.SafetyLock
	}
	return snap
}
