package settings

import (
	"context"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/logging"
)

// Mirror keeps a primary store authoritative and copies every save to a
// secondary one. A record found only in the secondary seeds the primary.
type Mirror struct {
	Primary   Store
	Secondary Store
}

func (m *Mirror) Load(ctx context.Context) (Record, error) {
	record, err := m.Primary.Load(ctx)
	if err == nil {
		m.copyToSecondary(ctx, record)
		return record, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}

	record, err = m.Secondary.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	logging.Logger(ctx).Info("restoring settings from blob mirror")
	if err := m.Primary.Save(ctx, record); err != nil {
		return Record{}, errors.Wrap(err, "seed primary settings")
	}
	return record, nil
}

// Save succeeds once the primary is written; mirror failures are logged and
// reported through the remote persist gauge.
func (m *Mirror) Save(ctx context.Context, record Record) error {
	if err := m.Primary.Save(ctx, record); err != nil {
		return err
	}
	m.copyToSecondary(ctx, record)
	return nil
}

func (m *Mirror) copyToSecondary(ctx context.Context, record Record) {
	if err := m.Secondary.Save(ctx, record); err != nil {
		remotePersistOK.Set(0)
		logging.Logger(ctx).WithError(err).Warn("failed to mirror settings")
		return
	}
	remotePersistOK.Set(1)
}
