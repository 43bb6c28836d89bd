package host

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/entity"
)

type acceptAll struct{}

func (acceptAll) SendCommand(context.Context, string, electrolux.Command) bool { return true }

type recordingSink struct {
	mu    sync.Mutex
	snaps []entity.Snapshot
	err   error
}

func (s *recordingSink) Publish(_ context.Context, snap entity.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *recordingSink) last() entity.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[len(s.snaps)-1]
}

func purifier(t *testing.T, deps entity.Deps) []entity.Entity {
	t.Helper()
	fanSpeed := 2
	ionizer := false
	pm25 := 4.0
	appliance := electrolux.Appliance{ID: "P1", Name: "Living", Type: "WELLA7"}
	state := &electrolux.ApplianceState{
		ApplianceID:     "P1",
		ConnectionState: electrolux.Connected,
		Reported: electrolux.ReportedProperties{
			Workmode: electrolux.WorkmodeManual,
			FanSpeed: &fanSpeed,
			Ionizer:  &ionizer,
			PM25:     &pm25,
		},
	}
	return []entity.Entity{
		entity.NewFan(appliance, nil, state.Clone(), deps),
		entity.NewIonizerSwitch(appliance, nil, state.Clone(), deps),
		entity.NewSensor(entity.WellA7Sensors[1], appliance, nil, state.Clone(), deps),
	}
}

func TestRegistryControlPublishesToSinks(t *testing.T) {
	sink := &recordingSink{}
	registry := NewRegistry(sink)
	registry.Add(purifier(t, entity.Deps{Commander: acceptAll{}, Notifier: registry})...)

	ok, err := registry.Control(context.Background(), "electrolux_ionizer_P1", "turn_on", nil)
	if err != nil || !ok {
		t.Fatalf("control: ok=%v err=%v", ok, err)
	}
	if got := sink.last(); got.ID != "electrolux_ionizer_P1" || got.State != "on" {
		t.Fatalf("unexpected published snapshot %+v", got)
	}
}

func TestRegistryUnknownEntity(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Control(context.Background(), "missing", "turn_on", nil); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected unknown entity, got %v", err)
	}
}

func TestRegistryAddKeepsOrderAndReplaces(t *testing.T) {
	registry := NewRegistry()
	entities := purifier(t, entity.Deps{})
	registry.Add(entities...)
	registry.Add(purifier(t, entity.Deps{})[0])

	got := registry.Entities()
	if len(got) != 3 || got[0].ID() != "electrolux_fan_P1" || got[2].ID() != "electrolux_pm25_P1" {
		t.Fatalf("unexpected entities %v", got)
	}
	if got[0] == entities[0] {
		t.Fatalf("expected replaced fan entity")
	}

	registry.Reset()
	if len(registry.Entities()) != 0 {
		t.Fatalf("expected empty registry after reset")
	}
}

func TestSinkFailureDoesNotStopOthers(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	healthy := &recordingSink{}
	registry := NewRegistry(failing, healthy)
	registry.Add(purifier(t, entity.Deps{})...)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	registry.PublishAll(context.Background())
	if len(healthy.snaps) != 3 || len(failing.snaps) != 3 {
		t.Fatalf("expected every sink to see every entity: healthy=%d failing=%d", len(healthy.snaps), len(failing.snaps))
	}
	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "failed to publish entity state" {
			warnings++
		}
	}
	if warnings != 3 {
		t.Fatalf("expected one warning per failed publish, got %d", warnings)
	}
}

func TestAddSinkSendsCurrentState(t *testing.T) {
	existing := &recordingSink{}
	registry := NewRegistry(existing)
	registry.Add(purifier(t, entity.Deps{})...)

	// A sink whose connect callback already fired before it was attached.
	registry.PublishAll(context.Background())
	late := &recordingSink{}
	registry.AddSink(context.Background(), late)

	if len(late.snaps) != 3 {
		t.Fatalf("attached sink must receive every current snapshot, got %d", len(late.snaps))
	}
	if late.snaps[0].ID != "electrolux_fan_P1" || late.snaps[2].ID != "electrolux_pm25_P1" {
		t.Fatalf("unexpected snapshot order %v", late.snaps)
	}
	if len(existing.snaps) != 3 {
		t.Fatalf("attaching a sink must not republish to the others, got %d", len(existing.snaps))
	}

	registry.PublishAll(context.Background())
	if len(late.snaps) != 6 || len(existing.snaps) != 6 {
		t.Fatalf("later publishes must reach both sinks: late=%d existing=%d", len(late.snaps), len(existing.snaps))
	}
}

func TestEntityCollector(t *testing.T) {
	registry := NewRegistry()
	registry.Add(purifier(t, entity.Deps{})...)
	collector := NewEntityCollector(registry)

	// fan percentage, pm2.5 value, three availability series, two on series, entity count
	if n := testutil.CollectAndCount(collector); n != 8 {
		t.Fatalf("unexpected metric count %d", n)
	}
	if err := testutil.CollectAndCompare(collector, strings.NewReader(`
# HELP elxbridge_entities Number of entities built for the session
# TYPE elxbridge_entities gauge
elxbridge_entities 3
`), "elxbridge_entities"); err != nil {
		t.Fatalf("unexpected entity count: %v", err)
	}
}

func TestTickerSchedulerStops(t *testing.T) {
	var calls atomic.Int32
	cancel := TickerScheduler{}.Schedule(5*time.Millisecond, func() { calls.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("scheduled function did not run")
	}
	cancel()
	cancel()

	time.Sleep(20 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != stopped {
		t.Fatalf("function ran after cancel")
	}
}
