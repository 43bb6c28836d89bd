package platform

import (
	"context"

	"github.com/korovkin/limiter"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/hub"
	"github.com/joshp123/electrolux-bridge/internal/logging"
)

// probeConcurrency bounds the state and info requests issued at setup.
const probeConcurrency = 4

// Setup probes every appliance some platform handles, builds the entities
// in discovery order and registers them with the backend. Appliances whose
// state or info cannot be fetched get no entities.
func Setup(ctx context.Context, b Backend, notifier hub.Notifier, platforms []Platform) ([]entity.Entity, error) {
	if err := Validate(platforms); err != nil {
		return nil, err
	}
	if b.Degraded() {
		return nil, nil
	}

	var wanted []electrolux.Appliance
	for _, appliance := range b.Discover(ctx) {
		for _, p := range platforms {
			if handles(p, appliance.Type) {
				wanted = append(wanted, appliance)
				break
			}
		}
	}

	targets := make([]*Target, len(wanted))
	limit := limiter.NewConcurrencyLimiter(probeConcurrency)
	for i, appliance := range wanted {
		limit.ExecuteWithTicket(func(ticket int) {
			log := logging.Logger(logging.WithAppliance(ctx, appliance.ID)).WithField("ticket", ticket)
			state := b.FetchState(ctx, appliance.ID)
			if state == nil {
				log.Warn("skipping appliance without state")
				return
			}
			info := b.ApplianceInfo(ctx, appliance.ID)
			if info == nil {
				log.Warn("skipping appliance without capability info")
				return
			}
			targets[i] = &Target{Appliance: appliance, Info: info, State: state}
		})
	}
	limit.Wait()

	deps := entity.Deps{Commander: b, Notifier: notifier}
	var entities []entity.Entity
	for _, target := range targets {
		if target == nil {
			continue
		}
		for _, p := range platforms {
			if !handles(p, target.Appliance.Type) {
				continue
			}
			// every entity gets its own copy so optimistic updates stay local
			t := *target
			t.State = target.State.Clone()
			entities = append(entities, p.Build(t, deps)...)
		}
	}
	if err := ValidateEntities(entities); err != nil {
		return nil, err
	}

	observers := make([]hub.Observer, len(entities))
	for i, e := range entities {
		observers[i] = e
	}
	b.Register(observers...)
	logging.Logger(ctx).WithField("entities", len(entities)).Info("platforms set up")
	return entities, nil
}

// Health reports DEGRADED for a session without credentials.
func Health(b Backend) (HealthStatus, string) {
	if b == nil {
		return HealthError, "no session"
	}
	if b.Degraded() {
		return HealthDegraded, "no stored credentials; run elxbridge setup"
	}
	return HealthHealthy, ""
}
