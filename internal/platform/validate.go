package platform

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/entity"
)

var errNoPlatforms = errors.New("no platforms configured")

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// Validate enforces the platform contract at startup.
func Validate(platforms []Platform) error {
	if len(platforms) == 0 {
		return errNoPlatforms
	}
	seen := make(map[string]bool)
	for _, p := range platforms {
		id := p.ID()
		if !idPattern.MatchString(id) {
			return errors.Errorf("platform id %q does not match %s", id, idPattern.String())
		}
		if seen[id] {
			return errors.Errorf("duplicate platform id: %s", id)
		}
		if len(p.ApplianceTypes()) == 0 {
			return errors.Errorf("platform %s handles no appliance types", id)
		}
		seen[id] = true
	}
	return nil
}

// ValidateEntities rejects duplicate entity ids.
func ValidateEntities(entities []entity.Entity) error {
	seen := make(map[string]bool)
	for _, e := range entities {
		if e.ID() == "" {
			return errors.New("entity id is empty")
		}
		if seen[e.ID()] {
			return errors.Errorf("duplicate entity id: %s", e.ID())
		}
		seen[e.ID()] = true
	}
	return nil
}
