package electrolux

import "strings"

// Enum values are the vendor wire literals. The empty string means the field
// was absent; the Unknown variant of each family means a literal this
// package does not recognise.

type ConnectionState string

const (
	Connected              ConnectionState = "CONNECTED"
	Disconnected           ConnectionState = "DISCONNECTED"
	ConnectionStateUnknown ConnectionState = "UNKNOWN"
)

func ParseConnectionState(raw string) ConnectionState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "CONNECTED":
		return Connected
	case "DISCONNECTED":
		return Disconnected
	default:
		return ConnectionStateUnknown
	}
}

type Status string

const (
	StatusEnabled  Status = "ENABLED"
	StatusDisabled Status = "DISABLED"
	StatusUnknown  Status = "UNKNOWN"
)

func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "ENABLED":
		return StatusEnabled
	case "DISABLED":
		return StatusDisabled
	default:
		return StatusUnknown
	}
}

// RunState is the Comfort 600 applianceState.
type RunState string

const (
	RunStateRunning RunState = "RUNNING"
	RunStateOff     RunState = "OFF"
	RunStateUnknown RunState = "UNKNOWN"
)

func ParseRunState(raw string) RunState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "RUNNING":
		return RunStateRunning
	case "OFF":
		return RunStateOff
	default:
		return RunStateUnknown
	}
}

type Toggle string

const (
	ToggleOn      Toggle = "ON"
	ToggleOff     Toggle = "OFF"
	ToggleUnknown Toggle = "UNKNOWN"
)

func ParseToggle(raw string) Toggle {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "ON":
		return ToggleOn
	case "OFF":
		return ToggleOff
	default:
		return ToggleUnknown
	}
}

type TemperatureRepresentation string

const (
	Celsius                          TemperatureRepresentation = "CELSIUS"
	TemperatureRepresentationUnknown TemperatureRepresentation = "UNKNOWN"
)

func ParseTemperatureRepresentation(raw string) TemperatureRepresentation {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "CELSIUS":
		return Celsius
	default:
		return TemperatureRepresentationUnknown
	}
}

type Mode string

const (
	ModeAuto    Mode = "AUTO"
	ModeCool    Mode = "COOL"
	ModeHeat    Mode = "HEAT"
	ModeUnknown Mode = "UNKNOWN"
)

func ParseMode(raw string) Mode {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "AUTO":
		return ModeAuto
	case "COOL":
		return ModeCool
	case "HEAT":
		return ModeHeat
	default:
		return ModeUnknown
	}
}

type FanSpeedSetting string

const (
	FanSpeedAuto    FanSpeedSetting = "AUTO"
	FanSpeedLow     FanSpeedSetting = "LOW"
	FanSpeedMiddle  FanSpeedSetting = "MIDDLE"
	FanSpeedHigh    FanSpeedSetting = "HIGH"
	FanSpeedUnknown FanSpeedSetting = "UNKNOWN"
)

func ParseFanSpeedSetting(raw string) FanSpeedSetting {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "AUTO":
		return FanSpeedAuto
	case "LOW":
		return FanSpeedLow
	case "MIDDLE":
		return FanSpeedMiddle
	case "HIGH":
		return FanSpeedHigh
	default:
		return FanSpeedUnknown
	}
}

type FilterState string

const (
	FilterGood    FilterState = "GOOD"
	FilterUnknown FilterState = "UNKNOWN"
)

func ParseFilterState(raw string) FilterState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "GOOD":
		return FilterGood
	default:
		return FilterUnknown
	}
}

// Workmode is the purifier operating mode. The vendor spells these in
// mixed case (Manual, Auto, PowerOff); parsing is case and underscore
// insensitive and Wire returns the canonical spelling.
type Workmode string

const (
	WorkmodeManual   Workmode = "MANUAL"
	WorkmodeAuto     Workmode = "AUTO"
	WorkmodePowerOff Workmode = "POWEROFF"
	WorkmodeUnknown  Workmode = "UNKNOWN"
)

func ParseWorkmode(raw string) Workmode {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""))
	switch normalized {
	case "":
		return ""
	case "manual":
		return WorkmodeManual
	case "auto":
		return WorkmodeAuto
	case "poweroff":
		return WorkmodePowerOff
	default:
		return WorkmodeUnknown
	}
}

// Wire returns the literal the command endpoint accepts.
func (w Workmode) Wire() string {
	switch w {
	case WorkmodeManual:
		return "Manual"
	case WorkmodeAuto:
		return "Auto"
	case WorkmodePowerOff:
		return "PowerOff"
	default:
		return ""
	}
}

// FilterType identifies the installed purifier filter. Zero means absent.
type FilterType int

const (
	FilterTypeUnknown   FilterType = -1
	FilterTypeParticle1 FilterType = 48
	FilterTypeParticle2 FilterType = 49
	FilterTypeOdor      FilterType = 192
)

func ParseFilterType(raw *int) FilterType {
	if raw == nil {
		return 0
	}
	switch FilterType(*raw) {
	case FilterTypeParticle1, FilterTypeParticle2, FilterTypeOdor:
		return FilterType(*raw)
	default:
		return FilterTypeUnknown
	}
}

func (f FilterType) String() string {
	switch f {
	case FilterTypeParticle1:
		return "particle_filter_1"
	case FilterTypeParticle2:
		return "particle_filter_2"
	case FilterTypeOdor:
		return "odor_filter"
	case FilterTypeUnknown:
		return "unknown"
	default:
		return ""
	}
}
