package electrolux

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Appliance is a discovered device. Immutable after discovery.
type Appliance struct {
	ID      string
	Name    string
	Type    string
	Created time.Time
}

type applianceWire struct {
	ApplianceID   string `json:"applianceId"`
	ApplianceName string `json:"applianceName"`
	ApplianceType string `json:"applianceType"`
	Created       string `json:"created"`
}

// ApplianceState is one poll result, replaced wholesale on every tick.
type ApplianceState struct {
	ApplianceID     string
	ConnectionState ConnectionState
	Status          Status
	Reported        ReportedProperties
}

// Connected reports whether the cloud currently reaches the appliance.
func (s *ApplianceState) Connected() bool {
	return s != nil && s.ConnectionState == Connected
}

// Clone returns a deep copy so observers can mutate their cached state.
func (s *ApplianceState) Clone() *ApplianceState {
	if s == nil {
		return nil
	}
	out := *s
	out.Reported = s.Reported.Clone()
	return &out
}

// ReportedProperties is the union of the reported fields of every supported
// appliance family. Pointer fields are nil when the device did not report them.
type ReportedProperties struct {
	// Comfort 600 air conditioner
	ApplianceState            RunState
	TemperatureRepresentation TemperatureRepresentation
	SleepMode                 Toggle
	TargetTemperatureC        *float64
	UILockMode                *bool
	Mode                      Mode
	FanSpeedSetting           FanSpeedSetting
	VerticalSwing             Toggle
	FilterState               FilterState
	AmbientTemperatureC       *float64

	// Air purifiers
	Workmode    Workmode
	FanSpeed    *int
	FilterLife1 *float64
	FilterType1 FilterType
	FilterLife2 *float64
	FilterType2 FilterType
	Ionizer     *bool
	UILight     *bool
	SafetyLock  *bool
	PM1         *float64
	PM25        *float64
	PM10        *float64
	Temperature *float64
	Humidity    *float64
	TVOC        *float64
	ECO2        *float64
	CO2         *float64

	// Extreme Home 500
	UVState         Toggle
	PM25Approximate *float64
}

type stateWire struct {
	ApplianceID     *string `json:"applianceId"`
	ConnectionState *string `json:"connectionState"`
	Status          *string `json:"status"`
	Properties      struct {
		Reported map[string]json.RawMessage `json:"reported"`
	} `json:"properties"`
}

func decodeAppliances(data []byte) ([]Appliance, error) {
	var resp []applianceWire
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "decode appliances")
	}
	appliances := make([]Appliance, 0, len(resp))
	for _, item := range resp {
		if item.ApplianceID == "" {
			continue
		}
		appliances = append(appliances, Appliance{
			ID:      item.ApplianceID,
			Name:    item.ApplianceName,
			Type:    item.ApplianceType,
			Created: parseTimestamp(item.Created),
		})
	}
	return appliances, nil
}

func decodeState(data []byte) (*ApplianceState, error) {
	var resp stateWire
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "decode appliance state")
	}
	if resp.ApplianceID == nil || *resp.ApplianceID == "" {
		return nil, errors.New("appliance state missing applianceId")
	}
	if resp.ConnectionState == nil {
		return nil, errors.New("appliance state missing connectionState")
	}
	if resp.Status == nil {
		return nil, errors.New("appliance state missing status")
	}
	return &ApplianceState{
		ApplianceID:     *resp.ApplianceID,
		ConnectionState: ParseConnectionState(*resp.ConnectionState),
		Status:          ParseStatus(*resp.Status),
		Reported:        decodeReported(resp.Properties.Reported),
	}, nil
}

// reported fields are decoded one at a time so a field of an unexpected
// type reads as absent instead of failing the whole state.
type fields map[string]json.RawMessage

func (f fields) str(key string) string {
	var out *string
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &out) == nil && out != nil {
		return *out
	}
	return ""
}

func (f fields) number(key string) *float64 {
	var out *float64
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &out) == nil {
		return out
	}
	return nil
}

func (f fields) integer(key string) *int {
	n := f.number(key)
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}

func (f fields) boolean(key string) *bool {
	var out *bool
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &out) == nil {
		return out
	}
	return nil
}

func decodeReported(raw map[string]json.RawMessage) ReportedProperties {
	f := fields(raw)
	return ReportedProperties{
		ApplianceState:            ParseRunState(f.str("applianceState")),
		TemperatureRepresentation: ParseTemperatureRepresentation(f.str("temperatureRepresentation")),
		SleepMode:                 ParseToggle(f.str("sleepMode")),
		TargetTemperatureC:        f.number("targetTemperatureC"),
		UILockMode:                f.boolean("uiLockMode"),
		Mode:                      ParseMode(f.str("mode")),
		FanSpeedSetting:           ParseFanSpeedSetting(f.str("fanSpeedSetting")),
		VerticalSwing:             ParseToggle(f.str("verticalSwing")),
		FilterState:               ParseFilterState(f.str("filterState")),
		AmbientTemperatureC:       f.number("ambientTemperatureC"),

		Workmode:    ParseWorkmode(f.str("Workmode")),
		FanSpeed:    f.integer("Fanspeed"),
		FilterLife1: f.number("FilterLife_1"),
		FilterType1: ParseFilterType(f.integer("FilterType_1")),
		FilterLife2: f.number("FilterLife_2"),
		FilterType2: ParseFilterType(f.integer("FilterType_2")),
		Ionizer:     f.boolean("Ionizer"),
		UILight:     f.boolean("UILight"),
		SafetyLock:  f.boolean("SafetyLock"),
		PM1:         f.number("PM1"),
		PM25:        f.number("PM2_5"),
		PM10:        f.number("PM10"),
		Temperature: f.number("Temp"),
		Humidity:    f.number("Humidity"),
		TVOC:        f.number("TVOC"),
		ECO2:        f.number("ECO2"),
		CO2:         f.number("CO2"),

		UVState:         ParseToggle(f.str("UVState")),
		PM25Approximate: f.number("PM2_5_Approximate"),
	}
}

// Clone deep-copies every optional field.
func (p ReportedProperties) Clone() ReportedProperties {
	out := p
	out.TargetTemperatureC = clonePtr(p.TargetTemperatureC)
	out.UILockMode = clonePtr(p.UILockMode)
	out.AmbientTemperatureC = clonePtr(p.AmbientTemperatureC)
	out.FanSpeed = clonePtr(p.FanSpeed)
	out.FilterLife1 = clonePtr(p.FilterLife1)
	out.FilterLife2 = clonePtr(p.FilterLife2)
	out.Ionizer = clonePtr(p.Ionizer)
	out.UILight = clonePtr(p.UILight)
	out.SafetyLock = clonePtr(p.SafetyLock)
	out.PM1 = clonePtr(p.PM1)
	out.PM25 = clonePtr(p.PM25)
	out.PM10 = clonePtr(p.PM10)
	out.Temperature = clonePtr(p.Temperature)
	out.Humidity = clonePtr(p.Humidity)
	out.TVOC = clonePtr(p.TVOC)
	out.ECO2 = clonePtr(p.ECO2)
	out.CO2 = clonePtr(p.CO2)
	out.PM25Approximate = clonePtr(p.PM25Approximate)
	return out
}

// Wire returns the present fields keyed by their vendor names.
func (p ReportedProperties) Wire() map[string]any {
	out := map[string]any{}
	putEnum(out, "applianceState", string(p.ApplianceState), p.ApplianceState == RunStateUnknown)
	putEnum(out, "temperatureRepresentation", string(p.TemperatureRepresentation), p.TemperatureRepresentation == TemperatureRepresentationUnknown)
	putEnum(out, "sleepMode", string(p.SleepMode), p.SleepMode == ToggleUnknown)
	putPtr(out, "targetTemperatureC", p.TargetTemperatureC)
	putPtr(out, "uiLockMode", p.UILockMode)
	putEnum(out, "mode", string(p.Mode), p.Mode == ModeUnknown)
	putEnum(out, "fanSpeedSetting", string(p.FanSpeedSetting), p.FanSpeedSetting == FanSpeedUnknown)
	putEnum(out, "verticalSwing", string(p.VerticalSwing), p.VerticalSwing == ToggleUnknown)
	putEnum(out, "filterState", string(p.FilterState), p.FilterState == FilterUnknown)
	putPtr(out, "ambientTemperatureC", p.AmbientTemperatureC)

	putEnum(out, "Workmode", p.Workmode.Wire(), false)
	putPtr(out, "Fanspeed", p.FanSpeed)
	putPtr(out, "FilterLife_1", p.FilterLife1)
	putFilterType(out, "FilterType_1", p.FilterType1)
	putPtr(out, "FilterLife_2", p.FilterLife2)
	putFilterType(out, "FilterType_2", p.FilterType2)
	putPtr(out, "Ionizer", p.Ionizer)
	putPtr(out, "UILight", p.UILight)
	putPtr(out, "SafetyLock", p.SafetyLock)
	putPtr(out, "PM1", p.PM1)
	putPtr(out, "PM2_5", p.PM25)
	putPtr(out, "PM10", p.PM10)
	putPtr(out, "Temp", p.Temperature)
	putPtr(out, "Humidity", p.Humidity)
	putPtr(out, "TVOC", p.TVOC)
	putPtr(out, "ECO2", p.ECO2)
	putPtr(out, "CO2", p.CO2)

	putEnum(out, "UVState", string(p.UVState), p.UVState == ToggleUnknown)
	putPtr(out, "PM2_5_Approximate", p.PM25Approximate)
	return out
}

func putEnum(out map[string]any, key, value string, unknown bool) {
	if value == "" || unknown {
		return
	}
	out[key] = value
}

func putPtr[T any](out map[string]any, key string, value *T) {
	if value == nil {
		return
	}
	out[key] = *value
}

func putFilterType(out map[string]any, key string, value FilterType) {
	if value == 0 || value == FilterTypeUnknown {
		return
	}
	out[key] = int(value)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.999999999", value); err == nil {
		return ts
	}
	return time.Time{}
}
