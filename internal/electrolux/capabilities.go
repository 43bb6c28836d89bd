package electrolux

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type Access string

const (
	AccessRead      Access = "read"
	AccessWrite     Access = "write"
	AccessReadWrite Access = "readwrite"
)

// ParseAccess maps the vendor access literal; anything unrecognised is read-only.
func ParseAccess(raw string) Access {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", "")) {
	case "write":
		return AccessWrite
	case "readwrite":
		return AccessReadWrite
	default:
		return AccessRead
	}
}

func (a Access) Writable() bool {
	return a == AccessWrite || a == AccessReadWrite
}

type CapabilityKind string

const (
	KindString      CapabilityKind = "string"
	KindInt         CapabilityKind = "int"
	KindNumber      CapabilityKind = "number"
	KindTemperature CapabilityKind = "temperature"
	KindBoolean     CapabilityKind = "boolean"
)

// Capability describes one property an appliance exposes.
type Capability struct {
	Access Access
	Kind   CapabilityKind
	Values []string
	Min    *float64
	Max    *float64
	Step   float64
}

// DeviceInfo is the applianceInfo block of /info.
type DeviceInfo struct {
	SerialNumber string
	PNC          string
	Brand        string
	DeviceType   string
	Model        string
	Variant      string
	Colour       string
}

// ApplianceInfo is the static description fetched once per appliance.
type ApplianceInfo struct {
	Info         DeviceInfo
	Capabilities map[string]Capability
}

// Capability looks up a capability by its wire name.
func (i *ApplianceInfo) Capability(name string) (Capability, bool) {
	if i == nil {
		return Capability{}, false
	}
	c, ok := i.Capabilities[name]
	return c, ok
}

type infoWire struct {
	ApplianceInfo struct {
		SerialNumber string `json:"serialNumber"`
		PNC          string `json:"pnc"`
		Brand        string `json:"brand"`
		DeviceType   string `json:"deviceType"`
		Model        string `json:"model"`
		Variant      string `json:"variant"`
		Colour       string `json:"colour"`
	} `json:"applianceInfo"`
	Capabilities map[string]json.RawMessage `json:"capabilities"`
}

type capabilityWire struct {
	Access string                     `json:"access"`
	Type   string                     `json:"type"`
	Values map[string]json.RawMessage `json:"values"`
	Min    *float64                   `json:"min"`
	Max    *float64                   `json:"max"`
	Step   *float64                   `json:"step"`
}

func decodeInfo(data []byte) (*ApplianceInfo, error) {
	var resp infoWire
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "decode appliance info")
	}
	info := &ApplianceInfo{
		Info: DeviceInfo{
			SerialNumber: resp.ApplianceInfo.SerialNumber,
			PNC:          resp.ApplianceInfo.PNC,
			Brand:        resp.ApplianceInfo.Brand,
			DeviceType:   resp.ApplianceInfo.DeviceType,
			Model:        resp.ApplianceInfo.Model,
			Variant:      resp.ApplianceInfo.Variant,
			Colour:       resp.ApplianceInfo.Colour,
		},
		Capabilities: make(map[string]Capability, len(resp.Capabilities)),
	}
	for name, raw := range resp.Capabilities {
		if name == "networkInterface" {
			continue
		}
		var wire capabilityWire
		// nested groups such as networkInterface have no flat shape; skip them
		if err := json.Unmarshal(raw, &wire); err != nil || wire.Type == "" {
			continue
		}
		capability := Capability{
			Access: ParseAccess(wire.Access),
			Kind:   CapabilityKind(strings.ToLower(wire.Type)),
			Min:    wire.Min,
			Max:    wire.Max,
		}
		if wire.Step != nil {
			capability.Step = *wire.Step
		}
		if len(wire.Values) > 0 {
			capability.Values = make([]string, 0, len(wire.Values))
			for value := range wire.Values {
				capability.Values = append(capability.Values, value)
			}
			sort.Strings(capability.Values)
		}
		info.Capabilities[name] = capability
	}
	return info, nil
}
