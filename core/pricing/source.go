// Package pricing defines the price source boundary. Implementations fetch
// spot prices for a horizon; CachedSource keeps planning alive through
// transient outages by serving the last good curve with a staleness flag.
package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viklund/heatopt/core/model"
)

// Source supplies electricity prices over a horizon.
type Source interface {
	FetchPrices(ctx context.Context, start, end time.Time) (model.PriceCurve, error)
}

// CachedSource wraps a Source and falls back to the last successfully
// fetched curve when the upstream fails. A curve served from cache is
// marked Stale so the planner can flag the resulting plan.
type CachedSource struct {
	src Source

	mu   sync.Mutex
	last model.PriceCurve
}

// NewCachedSource wraps src.
func NewCachedSource(src Source) *CachedSource {
	return &CachedSource{src: src}
}

// FetchPrices returns fresh prices when possible. On upstream failure the
// cached curve is returned together with ErrDataUnavailable; the caller
// decides whether a stale curve is still usable.
func (c *CachedSource) FetchPrices(ctx context.Context, start, end time.Time) (model.PriceCurve, error) {
	curve, err := c.src.FetchPrices(ctx, start, end)
	if err == nil {
		if verr := curve.Validate(); verr != nil {
			return model.PriceCurve{}, verr
		}
		c.mu.Lock()
		c.last = curve
		c.mu.Unlock()
		return curve, nil
	}

	c.mu.Lock()
	cached := c.last
	c.mu.Unlock()
	if len(cached.Points) == 0 {
		return model.PriceCurve{}, fmt.Errorf("%w: price fetch failed and no cached curve: %v", model.ErrDataUnavailable, err)
	}
	cached.Stale = true
	return cached, fmt.Errorf("%w: serving cached prices: %v", model.ErrDataUnavailable, err)
}

// Cached returns the last good curve, if any.
func (c *CachedSource) Cached() (model.PriceCurve, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, len(c.last.Points) > 0
}

// StaticSource serves a fixed curve, used in tests and the one-shot plan
// command.
type StaticSource struct {
	Curve model.PriceCurve
	Err   error
}

// FetchPrices returns the configured curve sliced to the requested range.
func (s StaticSource) FetchPrices(_ context.Context, start, end time.Time) (model.PriceCurve, error) {
	if s.Err != nil {
		return model.PriceCurve{}, s.Err
	}
	return s.Curve.Slice(start, end), nil
}
