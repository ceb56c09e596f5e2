package comfort

import (
	"sync"
	"time"

	"github.com/viklund/heatopt/core/model"
)

// Bounds is the acceptable temperature range at one instant.
type Bounds struct {
	Min float64
	Max float64
}

// Mid returns the midpoint of the range, used as the baseline setpoint.
func (b Bounds) Mid() float64 { return (b.Min + b.Max) / 2 }

// Override temporarily supersedes the schedule-derived window. Overrides
// carry an explicit expiry and revert automatically. A zero From means the
// override is active immediately.
type Override struct {
	Bounds   Bounds
	From     time.Time
	Until    time.Time
	Priority int
}

func (o Override) active(t time.Time) bool {
	return t.Before(o.Until) && !t.Before(o.From)
}

// Default window applied wherever no configured window matches, so that
// BoundsAt is total over any horizon.
var defaultBounds = Bounds{Min: 16, Max: 24}

// Policy resolves the effective comfort bounds for a zone at any timestamp.
// Schedule windows are daily and priority-resolved; overrides (boost,
// vacation) sit on top with their own priorities and expiries.
type Policy struct {
	mu        sync.RWMutex
	windows   []model.ComfortWindow
	overrides []Override
}

// NewPolicy builds a policy from the zone's configured windows.
func NewPolicy(windows []model.ComfortWindow) *Policy {
	ws := make([]model.ComfortWindow, len(windows))
	copy(ws, windows)
	return &Policy{windows: ws}
}

// BoundsAt returns the effective bounds at t. The function is total: with
// no matching window or active override the default fallback applies.
func (p *Policy) BoundsAt(t time.Time) Bounds {
	p.mu.RLock()
	defer p.mu.RUnlock()

	best := defaultBounds
	bestPrio := -1 << 31
	minute := t.Hour()*60 + t.Minute()
	for _, w := range p.windows {
		if !windowCovers(w, minute) {
			continue
		}
		if w.Priority > bestPrio {
			best = Bounds{Min: w.MinTemp, Max: w.MaxTemp}
			bestPrio = w.Priority
		}
	}
	for _, o := range p.overrides {
		if o.active(t) && o.Priority > bestPrio {
			best = o.Bounds
			bestPrio = o.Priority
		}
	}
	return best
}

// windowCovers handles daily windows that wrap past midnight.
func windowCovers(w model.ComfortWindow, minute int) bool {
	if w.StartMinute == w.EndMinute {
		return true // full-day window
	}
	if w.StartMinute < w.EndMinute {
		return minute >= w.StartMinute && minute < w.EndMinute
	}
	return minute >= w.StartMinute || minute < w.EndMinute
}

// SetOverride installs an override. Expired overrides are pruned on the way.
func (p *Policy) SetOverride(o Override) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked(time.Now())
	p.overrides = append(p.overrides, o)
}

// Boost raises the lower bound by delta degrees for the given duration,
// superseding any schedule window.
func (p *Policy) Boost(now time.Time, delta float64, d time.Duration) {
	base := p.BoundsAt(now)
	b := Bounds{Min: base.Min + delta, Max: base.Max}
	if b.Min > b.Max {
		b.Min = b.Max
	}
	p.SetOverride(Override{Bounds: b, Until: now.Add(d), Priority: 1000})
}

// ActiveOverride returns the highest-priority unexpired override, false when
// the schedule alone is in effect.
func (p *Policy) ActiveOverride(now time.Time) (Override, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var best Override
	found := false
	for _, o := range p.overrides {
		if o.active(now) && (!found || o.Priority > best.Priority) {
			best = o
			found = true
		}
	}
	return best, found
}

// Vacation clamps the zone to a reduced band for an absolute date range.
// It sits below boost priority so a manual boost still wins.
func (p *Policy) Vacation(from, until time.Time, b Bounds) {
	p.SetOverride(Override{Bounds: b, From: from, Until: until, Priority: 500})
}

// Prune drops expired overrides and reports whether any were removed, which
// callers treat as a replanning trigger.
func (p *Policy) Prune(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pruneLocked(now)
}

func (p *Policy) pruneLocked(now time.Time) bool {
	kept := p.overrides[:0]
	removed := false
	for _, o := range p.overrides {
		if now.Before(o.Until) {
			kept = append(kept, o)
		} else {
			removed = true
		}
	}
	p.overrides = kept
	return removed
}
