package electrolux

import (
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

func TestParseWorkmode(t *testing.T) {
	cases := map[string]Workmode{
		"":          "",
		"Manual":    WorkmodeManual,
		"MANUAL":    WorkmodeManual,
		"Auto":      WorkmodeAuto,
		"auto":      WorkmodeAuto,
		"PowerOff":  WorkmodePowerOff,
		"POWER_OFF": WorkmodePowerOff,
		"Turbo":     WorkmodeUnknown,
	}
	for raw, want := range cases {
		if got := ParseWorkmode(raw); got != want {
			t.Errorf("ParseWorkmode(%q) = %q, want %q", raw, got, want)
		}
	}
	if WorkmodePowerOff.Wire() != "PowerOff" || WorkmodeAuto.Wire() != "Auto" || WorkmodeManual.Wire() != "Manual" {
		t.Fatalf("unexpected wire literals")
	}
}

func TestParseEnums(t *testing.T) {
	if ParseConnectionState("connected") != Connected || ParseConnectionState("DISCONNECTED") != Disconnected {
		t.Fatalf("connection state literals")
	}
	if ParseConnectionState("FLAKY") != ConnectionStateUnknown {
		t.Fatalf("unknown connection state must map to Unknown")
	}
	if ParseStatus("ENABLED") != StatusEnabled || ParseStatus("DISABLED") != StatusDisabled || ParseStatus("x") != StatusUnknown {
		t.Fatalf("status literals")
	}
	if ParseRunState("RUNNING") != RunStateRunning || ParseRunState("OFF") != RunStateOff || ParseRunState("IDLE") != RunStateUnknown {
		t.Fatalf("run state literals")
	}
	if ParseToggle("ON") != ToggleOn || ParseToggle("off") != ToggleOff || ParseToggle("MAYBE") != ToggleUnknown {
		t.Fatalf("toggle literals")
	}
	if ParseTemperatureRepresentation("CELSIUS") != Celsius || ParseTemperatureRepresentation("KELVIN") != TemperatureRepresentationUnknown {
		t.Fatalf("temperature representation literals")
	}
	for raw, want := range map[string]Mode{"AUTO": ModeAuto, "COOL": ModeCool, "HEAT": ModeHeat, "DRY": ModeUnknown, "": ""} {
		if got := ParseMode(raw); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", raw, got, want)
		}
	}
	for raw, want := range map[string]FanSpeedSetting{"AUTO": FanSpeedAuto, "LOW": FanSpeedLow, "MIDDLE": FanSpeedMiddle, "HIGH": FanSpeedHigh, "TURBO": FanSpeedUnknown} {
		if got := ParseFanSpeedSetting(raw); got != want {
			t.Errorf("ParseFanSpeedSetting(%q) = %q, want %q", raw, got, want)
		}
	}
	if ParseFilterState("GOOD") != FilterGood || ParseFilterState("CLOGGED") != FilterUnknown {
		t.Fatalf("filter state literals")
	}
}

func TestParseFilterType(t *testing.T) {
	known := map[int]string{
		48:  "particle_filter_1",
		49:  "particle_filter_2",
		192: "odor_filter",
	}
	for raw, label := range known {
		raw := raw
		got := ParseFilterType(&raw)
		if int(got) != raw {
			t.Errorf("ParseFilterType(%d) = %d", raw, got)
		}
		if got.String() != label {
			t.Errorf("FilterType(%d).String() = %q, want %q", raw, got.String(), label)
		}
	}
	if FilterTypeParticle1 != 48 || FilterTypeParticle2 != 49 || FilterTypeOdor != 192 {
		t.Fatalf("filter type constants drifted from the wire values")
	}
	other := 3
	if ParseFilterType(&other) != FilterTypeUnknown {
		t.Fatalf("unknown filter type must map to -1")
	}
	if ParseFilterType(nil) != 0 {
		t.Fatalf("absent filter type must be zero")
	}
}

func TestDecodeStateEdgeCases(t *testing.T) {
	if _, err := decodeState([]byte(`{"connectionState":"CONNECTED","status":"ENABLED"}`)); err == nil {
		t.Fatalf("expected error without applianceId")
	}
	if _, err := decodeState([]byte(`{"applianceId":"A1","status":"ENABLED"}`)); err == nil {
		t.Fatalf("expected error without connectionState")
	}
	if _, err := decodeState([]byte(`{"applianceId":"A1","connectionState":"CONNECTED","properties":{"reported":{}}}`)); err == nil {
		t.Fatalf("expected error without status")
	}

	state, err := decodeState([]byte(`{"applianceId":"A1","connectionState":"DISCONNECTED","status":"ENABLED"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Connected() {
		t.Fatalf("expected disconnected")
	}
	if len(state.Reported.Wire()) != 0 {
		t.Fatalf("expected empty reported properties, got %v", state.Reported.Wire())
	}

	state, err = decodeState([]byte(`{"applianceId":"A1","connectionState":"CONNECTED","status":"ENABLED","properties":{"reported":{"mode":"DRY","Fanspeed":"fast","PM2_5":null,"Ionizer":false}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Reported.Mode != ModeUnknown {
		t.Fatalf("expected unknown mode, got %q", state.Reported.Mode)
	}
	if state.Reported.FanSpeed != nil || state.Reported.PM25 != nil {
		t.Fatalf("mistyped or null fields must be absent")
	}
	if state.Reported.Ionizer == nil || *state.Reported.Ionizer {
		t.Fatalf("expected Ionizer=false")
	}
}

func TestCloneIsDeep(t *testing.T) {
	speed := 3
	state := &ApplianceState{ApplianceID: "P1", Reported: ReportedProperties{FanSpeed: &speed}}
	clone := state.Clone()
	*clone.Reported.FanSpeed = 5
	if *state.Reported.FanSpeed != 3 {
		t.Fatalf("clone shares fan speed with original")
	}
}

func TestDiff(t *testing.T) {
	speed, newSpeed := 2, 4
	ionizer := true
	before := ReportedProperties{Workmode: WorkmodeManual, FanSpeed: &speed, Ionizer: &ionizer}
	after := before.Clone()
	after.Workmode = WorkmodePowerOff
	after.FanSpeed = &newSpeed

	cmd := Diff(before, after)
	if len(cmd) != 2 {
		t.Fatalf("expected two changed fields, got %v", cmd)
	}
	if cmd["Workmode"] != "PowerOff" || cmd["Fanspeed"] != 4 {
		t.Fatalf("unexpected command %v", cmd)
	}
	if len(Diff(before, before.Clone())) != 0 {
		t.Fatalf("identical properties must produce an empty command")
	}

	target := 21.0
	cmd = Diff(ReportedProperties{}, ReportedProperties{TargetTemperatureC: &target, Mode: ModeHeat})
	if cmd["targetTemperatureC"] != 21.0 || cmd["mode"] != "HEAT" {
		t.Fatalf("unexpected command %v", cmd)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if (Token{}).Expired(now) {
		t.Fatalf("unknown expiration must not be expired")
	}
	if !(Token{Expiration: now}).Expired(now) {
		t.Fatalf("expiration equal to now must be expired")
	}
	if (Token{Expiration: now.Add(time.Second)}).Expired(now) {
		t.Fatalf("future expiration must not be expired")
	}
}

func TestTokenExpiryFromJWT(t *testing.T) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("0123456789abcdef0123456789abcdef")}, nil)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	exp := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	raw, err := jwt.Signed(signer).Claims(jwt.Claims{Subject: "user", Expiry: jwt.NewNumericDate(exp)}).Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got, err := TokenExpiryFromJWT(raw)
	if err != nil {
		t.Fatalf("expiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expected %s, got %s", exp, got)
	}

	if _, err := TokenExpiryFromJWT("not-a-jwt"); err == nil {
		t.Fatalf("expected error for garbage token")
	}
}
