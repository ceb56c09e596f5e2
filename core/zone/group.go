package zone

import (
	"fmt"

	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/thermal"
)

// Group owns the shared thermal model of zones configured into one thermal
// group. Membership is expressed here, never as cross-references between
// zones, so history from one zone only reaches another through an explicit
// group.
type Group struct {
	cfg    model.ThermalGroup
	shared *thermal.Model
}

// NewGroup creates a group around a shared model instance.
func NewGroup(cfg model.ThermalGroup, shared *thermal.Model) (*Group, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("thermal group: id is required")
	}
	if len(cfg.Members) < 2 {
		return nil, fmt.Errorf("thermal group %s: needs at least two members", cfg.ID)
	}
	return &Group{cfg: cfg, shared: shared}, nil
}

// ID returns the group identifier.
func (g *Group) ID() string { return g.cfg.ID }

// Members returns the member zone IDs.
func (g *Group) Members() []string {
	out := make([]string, len(g.cfg.Members))
	copy(out, g.cfg.Members)
	return out
}

// Model returns the shared thermal model.
func (g *Group) Model() *thermal.Model { return g.shared }

// Contains reports group membership.
func (g *Group) Contains(zoneID string) bool {
	for _, m := range g.cfg.Members {
		if m == zoneID {
			return true
		}
	}
	return false
}
