// Package hub owns the authenticated client for one account: it discovers
// appliances once, polls their state on every tick and fans the results out
// to registered observers.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/logging"
	"github.com/joshp123/electrolux-bridge/internal/settings"
)

// Observer receives the state of one appliance after every poll.
type Observer interface {
	ApplianceID() string
	ApplyState(state *electrolux.ApplianceState) error
}

// Notifier is told when an observer's state changed.
type Notifier interface {
	StateChanged(o Observer)
}

// Scheduler runs fn every interval until the returned cancel is called.
type Scheduler interface {
	Schedule(interval time.Duration, fn func()) (cancel func())
}

// API is the subset of the vendor client the session needs.
type API interface {
	Appliances(ctx context.Context) ([]electrolux.Appliance, error)
	ApplianceInfo(ctx context.Context, applianceID string) (*electrolux.ApplianceInfo, error)
	ApplianceState(ctx context.Context, applianceID string) (*electrolux.ApplianceState, error)
	SendCommand(ctx context.Context, applianceID string, cmd electrolux.Command) error
	Close()
}

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Store     settings.Store
	Notifier  Notifier
	Scheduler Scheduler
}

// Session is the per-account hub. A Session without an API is degraded:
// every operation is a no-op.
type Session struct {
	api      API
	store    settings.Store
	notifier Notifier

	recordMu sync.Mutex
	record   settings.Record

	discoverOnce sync.Once
	appliancesMu sync.RWMutex
	appliances   []electrolux.Appliance

	observersMu sync.RWMutex
	observers   []Observer

	tickMu sync.Mutex

	ctx         context.Context
	cancel      context.CancelFunc
	cancelTimer func()
	closeOnce   sync.Once
}

// Start loads the stored record, builds the client, discovers appliances
// and schedules polling. Missing credentials yield a degraded session.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("settings store is required")
	}
	record, err := cfg.Store.Load(ctx)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		return nil, errors.Wrap(err, "load settings")
	}
	if err != nil || !record.HasCredentials() {
		logging.Logger(ctx).Warn("no stored credentials, running without appliances; run elxbridge setup")
		return New(nil, cfg.Store, record, cfg.Notifier), nil
	}

	s := New(nil, cfg.Store, record, cfg.Notifier)
	client, err := electrolux.NewClient(electrolux.Config{
		BaseURL:   cfg.BaseURL,
		APIKey:    record.APIKey,
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	}, electrolux.Token{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		Expiration:   record.Expiration(),
	}, s.persistToken)
	if err != nil {
		return nil, errors.Wrap(err, "build client")
	}
	s.api = client

	appliances := s.Discover(ctx)
	logging.Logger(ctx).WithField("appliances", len(appliances)).Info("discovered appliances")

	if cfg.Scheduler != nil {
		s.cancelTimer = cfg.Scheduler.Schedule(record.Interval(), func() {
			s.Tick(s.ctx)
		})
	}
	return s, nil
}

// New wraps an existing API. api may be nil for a degraded session.
func New(api API, store settings.Store, record settings.Record, notifier Notifier) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		api:      api,
		store:    store,
		record:   record,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Degraded reports whether the session runs without credentials.
func (s *Session) Degraded() bool {
	return s.api == nil
}

// Record returns a copy of the current settings record.
func (s *Session) Record() settings.Record {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()
	return s.record
}

// persistToken writes a refreshed token back to the store before the client uses it.
func (s *Session) persistToken(ctx context.Context, token electrolux.Token) error {
	s.recordMu.Lock()
	record := s.record
	record.AccessToken = token.AccessToken
	record.RefreshToken = token.RefreshToken
	exp := token.Expiration.UTC()
	record.TokenExpiration = &exp
	s.record = record
	s.recordMu.Unlock()

	if s.store == nil {
		return nil
	}
	return s.store.Save(ctx, record)
}

// Discover lists the account's appliances on first use and caches the
// result, including an empty result after a failure.
func (s *Session) Discover(ctx context.Context) []electrolux.Appliance {
	s.discoverOnce.Do(func() {
		if s.api == nil {
			return
		}
		appliances, err := s.api.Appliances(ctx)
		if err != nil {
			logging.Logger(ctx).WithError(err).Error("failed to list appliances")
			return
		}
		s.appliancesMu.Lock()
		s.appliances = appliances
		s.appliancesMu.Unlock()
	})
	return s.Appliances()
}

// Appliances returns the cached discovery result.
func (s *Session) Appliances() []electrolux.Appliance {
	s.appliancesMu.RLock()
	defer s.appliancesMu.RUnlock()
	out := make([]electrolux.Appliance, len(s.appliances))
	copy(out, s.appliances)
	return out
}

// FetchState returns the appliance state or nil on any failure.
func (s *Session) FetchState(ctx context.Context, applianceID string) *electrolux.ApplianceState {
	if s.api == nil {
		return nil
	}
	state, err := s.api.ApplianceState(ctx, applianceID)
	if err != nil {
		stateFetchFailures.Inc()
		logging.Logger(logging.WithAppliance(ctx, applianceID)).WithError(err).Error("failed to fetch appliance state")
		return nil
	}
	return state
}

// ApplianceInfo returns the capability description or nil on any failure.
func (s *Session) ApplianceInfo(ctx context.Context, applianceID string) *electrolux.ApplianceInfo {
	if s.api == nil {
		return nil
	}
	info, err := s.api.ApplianceInfo(ctx, applianceID)
	if err != nil {
		logging.Logger(logging.WithAppliance(ctx, applianceID)).WithError(err).Error("failed to fetch appliance info")
		return nil
	}
	return info
}

// SendCommand reports whether the API accepted cmd.
func (s *Session) SendCommand(ctx context.Context, applianceID string, cmd electrolux.Command) bool {
	if s.api == nil {
		commandsTotal.WithLabelValues("rejected").Inc()
		return false
	}
	log := logging.Logger(logging.WithAppliance(ctx, applianceID))
	if err := s.api.SendCommand(ctx, applianceID, cmd); err != nil {
		commandsTotal.WithLabelValues("failure").Inc()
		log.WithError(err).WithField("command", cmd).Error("command failed")
		return false
	}
	commandsTotal.WithLabelValues("success").Inc()
	log.WithField("command", cmd).Debug("command accepted")
	return true
}

// Register adds observers that receive state on every tick.
func (s *Session) Register(observers ...Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, observers...)
}

func (s *Session) observersFor(applianceID string) []Observer {
	s.observersMu.RLock()
	defer s.observersMu.RUnlock()
	var out []Observer
	for _, o := range s.observers {
		if o.ApplianceID() == applianceID {
			out = append(out, o)
		}
	}
	return out
}

// Close stops polling and releases the HTTP session. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancelTimer != nil {
			s.cancelTimer()
		}
		s.cancel()
		if s.api != nil {
			s.api.Close()
		}
	})
}
