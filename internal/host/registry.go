// Package host is the bridge's side of the entity boundary: it keeps the
// built entities, routes user actions to them and forwards state changes to
// the configured sinks.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/hub"
	"github.com/joshp123/electrolux-bridge/internal/logging"
)

var ErrUnknownEntity = errors.New("unknown entity")

const publishTimeout = 10 * time.Second

// Sink receives entity snapshots whenever an entity changes.
type Sink interface {
	Publish(ctx context.Context, snap entity.Snapshot) error
}

// Registry holds the entities of one session. It implements hub.Notifier.
type Registry struct {
	mu       sync.RWMutex
	entities []entity.Entity
	byID     map[string]entity.Entity
	sinks    []Sink
}

func NewRegistry(sinks ...Sink) *Registry {
	return &Registry{byID: make(map[string]entity.Entity), sinks: sinks}
}

// Add appends entities; an id already present is replaced.
func (r *Registry) Add(entities ...entity.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entities {
		if _, ok := r.byID[e.ID()]; ok {
			for i, existing := range r.entities {
				if existing.ID() == e.ID() {
					r.entities[i] = e
				}
			}
		} else {
			r.entities = append(r.entities, e)
		}
		r.byID[e.ID()] = e
	}
}

// Reset drops every entity, used when a session is rebuilt.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = nil
	r.byID = make(map[string]entity.Entity)
}

// AddSink attaches s and sends it every current snapshot, so a sink that
// connected before it was attached still starts from the full state.
func (r *Registry) AddSink(ctx context.Context, s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()

	for _, snap := range r.Snapshots() {
		publishTo(ctx, s, snap)
	}
}

// Entities returns the entities in the order they were added.
func (r *Registry) Entities() []entity.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

func (r *Registry) Entity(id string) (entity.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

func (r *Registry) Snapshots() []entity.Snapshot {
	entities := r.Entities()
	out := make([]entity.Snapshot, len(entities))
	for i, e := range entities {
		out[i] = e.Snapshot()
	}
	return out
}

// Control runs action on the entity with the given id.
func (r *Registry) Control(ctx context.Context, id, action string, value any) (bool, error) {
	e, ok := r.Entity(id)
	if !ok {
		return false, errors.Wrap(ErrUnknownEntity, id)
	}
	ok, err := e.Control(ctx, action, value)
	logging.Logger(logging.WithAppliance(ctx, e.ApplianceID())).
		WithField("entity", id).
		WithField("action", action).
		WithField("accepted", ok).
		Debug("entity action")
	return ok, err
}

// StateChanged publishes the observer's snapshot to every sink.
func (r *Registry) StateChanged(o hub.Observer) {
	e, ok := o.(entity.Entity)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	r.publish(ctx, e.Snapshot())
}

// PublishAll pushes every entity's current snapshot, used on sink connect.
func (r *Registry) PublishAll(ctx context.Context) {
	for _, snap := range r.Snapshots() {
		r.publish(ctx, snap)
	}
}

func (r *Registry) publish(ctx context.Context, snap entity.Snapshot) {
	r.mu.RLock()
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.mu.RUnlock()

	for _, s := range sinks {
		publishTo(ctx, s, snap)
	}
}

func publishTo(ctx context.Context, s Sink, snap entity.Snapshot) {
	if err := s.Publish(ctx, snap); err != nil {
		logging.Logger(logging.WithAppliance(ctx, snap.ApplianceID)).
			WithError(err).
			WithField("entity", snap.ID).
			Warn("failed to publish entity state")
	}
}
