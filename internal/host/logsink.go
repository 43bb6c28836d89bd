package host

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/logging"
)

// LogSink writes every snapshot to the log at info level.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, snap entity.Snapshot) error {
	logging.Logger(logging.WithAppliance(ctx, snap.ApplianceID)).
		WithFields(logrus.Fields{
			"entity":    snap.ID,
			"state":     snap.State,
			"available": snap.Available,
		}).
		Info("entity state")
	return nil
}
