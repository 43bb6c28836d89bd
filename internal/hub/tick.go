package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/logging"
)

// Tick polls every discovered appliance in order and hands each state to
// its observers. A tick that starts while another is running returns at once.
func (s *Session) Tick(ctx context.Context) {
	if s.api == nil {
		return
	}
	if !s.tickMu.TryLock() {
		ticksTotal.WithLabelValues("skipped").Inc()
		logging.Logger(ctx).Debug("previous poll still running, skipping tick")
		return
	}
	defer s.tickMu.Unlock()

	start := time.Now()
	defer func() {
		tickDuration.Observe(time.Since(start).Seconds())
	}()

	for _, appliance := range s.Appliances() {
		if ctx.Err() != nil {
			ticksTotal.WithLabelValues("cancelled").Inc()
			return
		}
		state := s.FetchState(ctx, appliance.ID)
		if state == nil {
			continue
		}
		for _, o := range s.observersFor(appliance.ID) {
			s.apply(logging.WithAppliance(ctx, appliance.ID), o, state)
		}
	}
	ticksTotal.WithLabelValues("completed").Inc()
}

// apply isolates one observer; its failure never reaches the others.
func (s *Session) apply(ctx context.Context, o Observer, state *electrolux.ApplianceState) {
	defer func() {
		if r := recover(); r != nil {
			observerFailures.Inc()
			logging.Logger(ctx).WithError(fmt.Errorf("panic: %v", r)).Error("observer failed to apply state")
		}
	}()

	if err := o.ApplyState(state.Clone()); err != nil {
		observerFailures.Inc()
		logging.Logger(ctx).WithError(err).Error("observer failed to apply state")
		return
	}
	if s.notifier != nil {
		s.notifier.StateChanged(o)
	}
}
