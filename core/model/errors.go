package model

import "errors"

// Error taxonomy of the planning core. Only ConfigError (zone.go) is fatal
// to zone activation; every sentinel below is recoverable and must leave
// the zone executing its previously committed plan.
var (
	// ErrDataUnavailable indicates a price or sensor fetch failed and the
	// caller degraded to cached or default data.
	ErrDataUnavailable = errors.New("external data unavailable")
	// ErrInfeasiblePlan indicates comfort bounds were unreachable within
	// physical rate limits even after maximum relaxation.
	ErrInfeasiblePlan = errors.New("no feasible plan within relaxed bounds")
	// ErrModelDegraded indicates the thermal model fell back to default
	// parameters due to insufficient or degenerate history.
	ErrModelDegraded = errors.New("thermal model degraded")
)
