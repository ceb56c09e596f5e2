// Package events defines the events carried on the service event bus.
package events

import "github.com/viklund/heatopt/core/zone"

// ReplanRequest asks the service loop to run a planning cycle for a zone.
// An empty ZoneID targets all zones.
type ReplanRequest struct {
	ZoneID  string
	Trigger zone.Trigger
}
