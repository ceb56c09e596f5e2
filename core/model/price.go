package model

import (
	"fmt"
	"time"
)

// PricePoint is the spot electricity price for one settlement interval.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	// Price is the cost per kWh in the configured currency.
	Price float64 `json:"price"`
}

// PriceCurve is an ordered, gap-free sequence of price points at a fixed
// step size covering a planning horizon.
type PriceCurve struct {
	Points []PricePoint
	Step   time.Duration
	// Stale marks a curve served from cache after a fetch failure.
	Stale bool
}

// Validate enforces strictly increasing, contiguous timestamps.
func (c PriceCurve) Validate() error {
	if c.Step <= 0 {
		return fmt.Errorf("price curve: step must be positive")
	}
	for i := 1; i < len(c.Points); i++ {
		gap := c.Points[i].Timestamp.Sub(c.Points[i-1].Timestamp)
		if gap <= 0 {
			return fmt.Errorf("price curve: timestamps not strictly increasing at index %d", i)
		}
		if gap != c.Step {
			return fmt.Errorf("price curve: gap of %s at index %d, want %s", gap, i, c.Step)
		}
	}
	return nil
}

// Start returns the timestamp of the first point, zero when empty.
func (c PriceCurve) Start() time.Time {
	if len(c.Points) == 0 {
		return time.Time{}
	}
	return c.Points[0].Timestamp
}

// End returns the exclusive end of the curve.
func (c PriceCurve) End() time.Time {
	if len(c.Points) == 0 {
		return time.Time{}
	}
	return c.Points[len(c.Points)-1].Timestamp.Add(c.Step)
}

// At returns the price in effect at t. The boolean is false when t falls
// outside the curve.
func (c PriceCurve) At(t time.Time) (float64, bool) {
	if len(c.Points) == 0 || t.Before(c.Start()) || !t.Before(c.End()) {
		return 0, false
	}
	idx := int(t.Sub(c.Start()) / c.Step)
	return c.Points[idx].Price, true
}

// Slice returns the sub-curve covering [from, to). Points outside the curve
// are simply absent; callers detect truncation by comparing bounds.
func (c PriceCurve) Slice(from, to time.Time) PriceCurve {
	out := PriceCurve{Step: c.Step, Stale: c.Stale}
	for _, p := range c.Points {
		if !p.Timestamp.Before(from) && p.Timestamp.Before(to) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}
