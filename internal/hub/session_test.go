package hub

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/settings"
)

type fakeAPI struct {
	mu         sync.Mutex
	appliances []electrolux.Appliance
	listErr    error
	listCalls  int
	states     map[string]*electrolux.ApplianceState
	stateErr   map[string]error
	stateCalls atomic.Int32
	block      chan struct{}
	entered    chan struct{}
	commands   []electrolux.Command
	commandErr error
	closeCalls atomic.Int32
}

func (f *fakeAPI) Appliances(context.Context) ([]electrolux.Appliance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.appliances, f.listErr
}

func (f *fakeAPI) ApplianceInfo(context.Context, string) (*electrolux.ApplianceInfo, error) {
	return &electrolux.ApplianceInfo{}, nil
}

func (f *fakeAPI) ApplianceState(_ context.Context, id string) (*electrolux.ApplianceState, error) {
	f.stateCalls.Add(1)
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	if err := f.stateErr[id]; err != nil {
		return nil, err
	}
	return f.states[id].Clone(), nil
}

func (f *fakeAPI) SendCommand(_ context.Context, _ string, cmd electrolux.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.commandErr
}

func (f *fakeAPI) Close() {
	f.closeCalls.Add(1)
}

type recordingObserver struct {
	id     string
	mu     sync.Mutex
	states []*electrolux.ApplianceState
	err    error
	panics bool
}

func (o *recordingObserver) ApplianceID() string { return o.id }

func (o *recordingObserver) ApplyState(state *electrolux.ApplianceState) error {
	if o.panics {
		panic("boom")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
	return o.err
}

func (o *recordingObserver) received() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.states)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changed []Observer
}

func (n *recordingNotifier) StateChanged(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, o)
}

type memoryStore struct {
	mu     sync.Mutex
	record *settings.Record
	saves  []settings.Record
}

func (m *memoryStore) Load(context.Context) (settings.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return settings.Record{}, settings.ErrNotFound
	}
	return *m.record, nil
}

func (m *memoryStore) Save(_ context.Context, record settings.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = &record
	m.saves = append(m.saves, record)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func twoAppliances() *fakeAPI {
	return &fakeAPI{
		appliances: []electrolux.Appliance{{ID: "A1", Type: "Azul"}, {ID: "A2", Type: "WELLA7"}},
		states: map[string]*electrolux.ApplianceState{
			"A1": {ApplianceID: "A1", ConnectionState: electrolux.Connected, Reported: electrolux.ReportedProperties{TargetTemperatureC: floatPtr(21)}},
			"A2": {ApplianceID: "A2", ConnectionState: electrolux.Connected, Reported: electrolux.ReportedProperties{PM25: floatPtr(4)}},
		},
	}
}

func TestTickFansOutPerAppliance(t *testing.T) {
	api := twoAppliances()
	api.stateErr = map[string]error{"A2": errors.New("timeout")}
	notifier := &recordingNotifier{}
	s := New(api, nil, settings.Record{}, notifier)
	s.Discover(context.Background())

	a1x := &recordingObserver{id: "A1"}
	a1y := &recordingObserver{id: "A1"}
	a2 := &recordingObserver{id: "A2"}
	s.Register(a1x, a1y, a2)

	s.Tick(context.Background())

	if a1x.received() != 1 || a1y.received() != 1 {
		t.Fatalf("expected both A1 observers to receive state")
	}
	if a2.received() != 0 {
		t.Fatalf("A2 observer must not receive state after a failed fetch")
	}
	if !reflect.DeepEqual(a1x.states[0], api.states["A1"]) {
		t.Fatalf("observer state differs from fetched state: %+v", a1x.states[0])
	}
	if a1x.states[0] == a1y.states[0] {
		t.Fatalf("observers must not share a state value")
	}
	if len(notifier.changed) != 2 {
		t.Fatalf("expected two notifications, got %d", len(notifier.changed))
	}
}

func TestTickContinuesAfterFirstApplianceFails(t *testing.T) {
	api := twoAppliances()
	api.stateErr = map[string]error{"A1": errors.New("timeout")}
	notifier := &recordingNotifier{}
	s := New(api, nil, settings.Record{}, notifier)
	s.Discover(context.Background())

	a1 := &recordingObserver{id: "A1"}
	a2 := &recordingObserver{id: "A2"}
	s.Register(a1, a2)

	s.Tick(context.Background())

	if got := api.stateCalls.Load(); got != 2 {
		t.Fatalf("expected both appliances to be fetched, got %d calls", got)
	}
	if a1.received() != 0 {
		t.Fatalf("A1 observer must not receive state after a failed fetch")
	}
	if a2.received() != 1 {
		t.Fatalf("A2 observer must receive state despite the A1 failure")
	}
	if !reflect.DeepEqual(a2.states[0], api.states["A2"]) {
		t.Fatalf("observer state differs from fetched state: %+v", a2.states[0])
	}
	if len(notifier.changed) != 1 || notifier.changed[0] != a2 {
		t.Fatalf("expected a single notification for A2, got %v", notifier.changed)
	}
}

func TestTickIsolatesObserverFailures(t *testing.T) {
	api := twoAppliances()
	notifier := &recordingNotifier{}
	s := New(api, nil, settings.Record{}, notifier)
	s.Discover(context.Background())

	failing := &recordingObserver{id: "A1", err: errors.New("bad state")}
	panicking := &recordingObserver{id: "A1", panics: true}
	healthy := &recordingObserver{id: "A1"}
	other := &recordingObserver{id: "A2"}
	s.Register(failing, panicking, healthy, other)

	s.Tick(context.Background())

	if healthy.received() != 1 || other.received() != 1 {
		t.Fatalf("healthy observers must still receive state")
	}
	if len(notifier.changed) != 2 {
		t.Fatalf("only successful observers are notified, got %d", len(notifier.changed))
	}
}

func TestTickSkipsWhileRunning(t *testing.T) {
	api := twoAppliances()
	api.appliances = api.appliances[:1]
	api.block = make(chan struct{})
	api.entered = make(chan struct{}, 1)
	s := New(api, nil, settings.Record{}, nil)
	s.Discover(context.Background())

	done := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(done)
	}()
	<-api.entered

	s.Tick(context.Background())
	if got := api.stateCalls.Load(); got != 1 {
		t.Fatalf("overlapping tick must not fetch, got %d fetches", got)
	}

	close(api.block)
	<-done

	api.block = nil
	s.Tick(context.Background())
	if got := api.stateCalls.Load(); got != 2 {
		t.Fatalf("tick after completion must poll again, got %d fetches", got)
	}
}

func TestTickStopsOnCancel(t *testing.T) {
	api := twoAppliances()
	s := New(api, nil, settings.Record{}, nil)
	s.Discover(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Tick(ctx)
	if api.stateCalls.Load() != 0 {
		t.Fatalf("cancelled tick must not fetch")
	}
}

func TestDiscoverCachesResult(t *testing.T) {
	api := twoAppliances()
	s := New(api, nil, settings.Record{}, nil)

	first := s.Discover(context.Background())
	second := s.Discover(context.Background())
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("unexpected discovery results %v %v", first, second)
	}
	if api.listCalls != 1 {
		t.Fatalf("expected a single list call, got %d", api.listCalls)
	}
}

func TestDiscoverFailureYieldsEmptyList(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("unauthorized")}
	s := New(api, nil, settings.Record{}, nil)

	if got := s.Discover(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
	s.Discover(context.Background())
	if api.listCalls != 1 {
		t.Fatalf("failed discovery must still be cached, got %d calls", api.listCalls)
	}
}

func TestSendCommandReportsOutcome(t *testing.T) {
	api := twoAppliances()
	s := New(api, nil, settings.Record{}, nil)

	if !s.SendCommand(context.Background(), "A1", electrolux.Command{"executeCommand": "ON"}) {
		t.Fatalf("expected success")
	}
	api.commandErr = errors.New("409")
	if s.SendCommand(context.Background(), "A1", electrolux.Command{"executeCommand": "OFF"}) {
		t.Fatalf("expected failure")
	}
	if len(api.commands) != 2 {
		t.Fatalf("expected two commands sent, got %d", len(api.commands))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	api := twoAppliances()
	s := New(api, nil, settings.Record{}, nil)
	var cancels int
	s.cancelTimer = func() { cancels++ }

	s.Close()
	s.Close()
	if api.closeCalls.Load() != 1 || cancels != 1 {
		t.Fatalf("expected single close, got api=%d timer=%d", api.closeCalls.Load(), cancels)
	}
}

func TestStartWithoutCredentialsIsDegraded(t *testing.T) {
	s, err := Start(context.Background(), Config{Store: &memoryStore{}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	if !s.Degraded() {
		t.Fatalf("expected degraded session")
	}
	if len(s.Appliances()) != 0 {
		t.Fatalf("degraded session must have no appliances")
	}
	if s.FetchState(context.Background(), "A1") != nil {
		t.Fatalf("degraded fetch must return nil")
	}
	if s.SendCommand(context.Background(), "A1", electrolux.Command{"Ionizer": true}) {
		t.Fatalf("degraded command must fail")
	}
	s.Tick(context.Background())
}

type manualScheduler struct {
	interval time.Duration
	fn       func()
	canceled bool
}

func (m *manualScheduler) Schedule(interval time.Duration, fn func()) func() {
	m.interval = interval
	m.fn = fn
	return func() { m.canceled = true }
}

func TestStartRefreshesAndPersists(t *testing.T) {
	var refreshes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/token/refresh":
			refreshes.Add(1)
			_, _ = io.WriteString(w, `{"accessToken":"a2","refreshToken":"r2","expiresIn":43200}`)
		case "/api/v1/appliances":
			if got := r.Header.Get("Authorization"); got != "Bearer a2" {
				t.Errorf("unexpected bearer %q", got)
			}
			_, _ = io.WriteString(w, `[{"applianceId":"P1","applianceName":"Living","applianceType":"WELLA7","created":"2023-06-01T10:00:00Z"}]`)
		case "/api/v1/appliances/P1/state":
			_, _ = io.WriteString(w, `{"applianceId":"P1","connectionState":"CONNECTED","status":"ENABLED","properties":{"reported":{"Workmode":"Auto","PM2_5":7}}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	past := time.Now().Add(-time.Hour)
	store := &memoryStore{record: &settings.Record{APIKey: "key", AccessToken: "a1", RefreshToken: "r1", TokenExpiration: &past, ScanInterval: 30}}
	scheduler := &manualScheduler{}

	s, err := Start(context.Background(), Config{BaseURL: server.URL, Store: store, Scheduler: scheduler})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	if refreshes.Load() != 1 {
		t.Fatalf("expected one refresh, got %d", refreshes.Load())
	}
	if len(store.saves) != 1 {
		t.Fatalf("expected the refreshed token to be saved once, got %d", len(store.saves))
	}
	saved := store.saves[0]
	if saved.AccessToken != "a2" || saved.RefreshToken != "r2" || saved.APIKey != "key" || saved.ScanInterval != 30 {
		t.Fatalf("unexpected saved record %+v", saved)
	}
	if saved.TokenExpiration == nil || time.Until(*saved.TokenExpiration) < 11*time.Hour {
		t.Fatalf("unexpected saved expiration %v", saved.TokenExpiration)
	}
	if scheduler.interval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %s", scheduler.interval)
	}

	observer := &recordingObserver{id: "P1"}
	s.Register(observer)
	scheduler.fn()
	if observer.received() != 1 {
		t.Fatalf("scheduled tick must deliver state")
	}
	if observer.states[0].Reported.Workmode != electrolux.WorkmodeAuto {
		t.Fatalf("unexpected workmode %q", observer.states[0].Reported.Workmode)
	}

	s.Close()
	if !scheduler.canceled {
		t.Fatalf("close must cancel the timer")
	}
}
