// Package zone orchestrates one heating zone: it owns the zone's thermal
// model, comfort policy and committed plan, re-runs the planner on triggers
// and emits the due action to the actuation boundary. Controllers are
// independent of host lifecycle: they can be created and destroyed per zone
// at any time and hold no global state.
package zone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viklund/heatopt/core/comfort"
	"github.com/viklund/heatopt/core/logger"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/planner"
	"github.com/viklund/heatopt/core/thermal"
)

// State of the per-zone machine.
type State int

const (
	Idle State = iota
	Planning
	Committed
	Executing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Planning:
		return "planning"
	case Committed:
		return "committed"
	case Executing:
		return "executing"
	}
	return "unknown"
}

// Trigger names the event that forced a replanning cycle.
type Trigger string

const (
	TriggerCadence     Trigger = "cadence"
	TriggerPriceUpdate Trigger = "price_update"
	TriggerPolicy      Trigger = "policy_change"
	TriggerDrift       Trigger = "drift"
	TriggerManual      Trigger = "manual"
)

// Actuator is the command boundary. The controller produces commands and
// never consumes their outcome; effects are observed later via the sensor.
type Actuator interface {
	SetHeatingLevel(zoneID string, level model.HeatingLevel, effectiveFrom time.Time) error
}

// Snapshot carries the already-fetched external state one planning cycle
// works on. The controller itself performs no blocking I/O.
type Snapshot struct {
	Now     time.Time
	Reading model.SensorReading
	Outdoor []float64
	Prices  model.PriceCurve
	// SensorMaxAge bounds the age of Reading. An older reading still plans,
	// since it remains the best available estimate, but the resulting plan
	// is flagged. Zero disables the check.
	SensorMaxAge time.Duration
}

// Controller runs the Idle -> Planning -> Committed -> Executing machine
// for a single zone. Only one planning operation is in flight at a time;
// triggers arriving during planning are coalesced into one deferred cycle.
type Controller struct {
	cfg      model.ZoneConfig
	model    *thermal.Model
	policy   *comfort.Policy
	planner  *planner.Planner
	history  *model.ThermalHistory
	actuator Actuator
	log      logger.Logger

	mu           sync.Mutex
	state        State
	plan         model.ActionPlan
	hasPlan      bool
	planning     bool
	pending      Trigger
	hasPending   bool
	lastLevel    model.HeatingLevel
	stepsAtLevel int
	lastReading  model.SensorReading
}

// New creates a controller in Idle. The configuration must already be
// validated; an invalid one is rejected here as well since activation with
// a broken definition is never allowed.
func New(cfg model.ZoneConfig, therm *thermal.Model, policy *comfort.Policy, pl *planner.Planner, act Actuator, log logger.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if therm == nil || policy == nil || pl == nil || act == nil {
		return nil, fmt.Errorf("zone %s: nil dependency", cfg.ID)
	}
	return &Controller{
		cfg:      cfg,
		model:    therm,
		policy:   policy,
		planner:  pl,
		history:  model.NewThermalHistory(time.Duration(cfg.RetentionDays) * 24 * time.Hour),
		actuator: act,
		log:      log,
		state:    Idle,
	}, nil
}

// ID returns the zone identifier.
func (c *Controller) ID() string { return c.cfg.ID }

// Config returns the zone configuration.
func (c *Controller) Config() model.ZoneConfig { return c.cfg }

// Policy exposes the comfort policy for override management.
func (c *Controller) Policy() *comfort.Policy { return c.policy }

// ThermalModel exposes the zone's model for reporting.
func (c *Controller) ThermalModel() *thermal.Model { return c.model }

// State returns the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Plan returns the committed plan, false when none has been committed yet.
func (c *Controller) Plan() (model.ActionPlan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plan, c.hasPlan
}

// Replan runs one planning cycle from the snapshot. A cycle already in
// flight coalesces the trigger instead of running concurrently; the
// deferred trigger is returned by the in-flight call via TakePending.
// Cancelling ctx aborts the cycle and leaves the committed plan active.
func (c *Controller) Replan(ctx context.Context, snap Snapshot, trig Trigger) (model.ActionPlan, error) {
	c.mu.Lock()
	if c.planning {
		c.pending = trig
		c.hasPending = true
		c.mu.Unlock()
		return model.ActionPlan{}, nil
	}
	c.planning = true
	c.state = Planning
	lastLevel := c.lastLevel
	stepsAtLevel := c.stepsAtLevel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.planning = false
		if c.state == Planning { // plan failed or was cancelled
			if c.hasPlan {
				c.state = Executing
			} else {
				c.state = Idle
			}
		}
		c.mu.Unlock()
	}()

	temp := snap.Reading.Temp
	req := planner.Request{
		Zone:         c.cfg,
		Model:        c.model,
		Policy:       c.policy,
		Prices:       snap.Prices,
		Outdoor:      snap.Outdoor,
		Start:        snap.Now.Truncate(time.Duration(c.planner.Config().StepMinutes) * time.Minute),
		CurrentTemp:  temp,
		CurrentLevel: lastLevel,
		StepsAtLevel: stepsAtLevel,
	}

	if err := ctx.Err(); err != nil {
		return model.ActionPlan{}, err
	}
	plan, err := c.planner.Plan(req)
	if err != nil {
		c.log.Errorf("zone %s: planning failed (%s): %v", c.cfg.ID, trig, err)
		return model.ActionPlan{}, err
	}
	if err := ctx.Err(); err != nil {
		// Cancelled mid-computation: the previously committed plan stays.
		return model.ActionPlan{}, err
	}
	if snap.SensorMaxAge > 0 && snap.Reading.Stale(snap.Now, snap.SensorMaxAge) {
		if !plan.HasFlag(model.FlagDataUnavailable) {
			plan.Flags = append(plan.Flags, model.FlagDataUnavailable)
		}
		c.log.Warnf("zone %s: planning from stale sensor reading (%s old)",
			c.cfg.ID, snap.Now.Sub(snap.Reading.Timestamp))
	}

	c.mu.Lock()
	c.plan = plan
	c.hasPlan = true
	c.state = Committed
	c.mu.Unlock()

	if len(plan.Flags) > 0 {
		c.log.Warnf("zone %s: plan %s committed with flags %v, relaxed=%d", c.cfg.ID, plan.ID, plan.Flags, len(plan.Relaxed))
	} else {
		c.log.Infof("zone %s: plan %s committed, cost %.3f (%s)", c.cfg.ID, plan.ID, plan.TotalCost, trig)
	}
	return plan, nil
}

// TakePending returns the coalesced trigger recorded while planning was in
// flight, clearing it.
func (c *Controller) TakePending() (Trigger, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.pending, c.hasPending
	c.pending, c.hasPending = "", false
	return t, ok
}

// Execute emits the action due at now to the actuation boundary and
// advances the dwell counter. Without a committed plan it is a no-op.
func (c *Controller) Execute(now time.Time) error {
	c.mu.Lock()
	if !c.hasPlan {
		c.mu.Unlock()
		return nil
	}
	step, ok := c.plan.StepAt(now)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	if step.Level == c.lastLevel {
		c.stepsAtLevel++
	} else {
		c.lastLevel = step.Level
		c.stepsAtLevel = 1
	}
	c.state = Executing
	zoneID := c.cfg.ID
	c.mu.Unlock()

	return c.actuator.SetHeatingLevel(zoneID, step.Level, step.Timestamp)
}

// Observe records a sensor sample into the zone's history and reports
// whether measured-vs-predicted drift exceeds the replanning threshold.
func (c *Controller) Observe(reading model.SensorReading, outdoor float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReading = reading
	c.history.Append(model.ThermalState{
		Timestamp:   reading.Timestamp,
		IndoorTemp:  reading.Temp,
		OutdoorTemp: outdoor,
		Level:       c.lastLevel,
	})
	if !c.hasPlan {
		return false
	}
	step, ok := c.plan.StepAt(reading.Timestamp)
	if !ok {
		return false
	}
	drift := reading.Temp - step.PredictedTemp
	if drift < 0 {
		drift = -drift
	}
	if drift > c.planner.Config().DriftThresholdDegC {
		c.log.Debugw("drift detected", map[string]any{
			"zone":      c.cfg.ID,
			"measured":  reading.Temp,
			"predicted": step.PredictedTemp,
		})
		return true
	}
	return false
}

// Learn refits the thermal model from retained history. Degraded fits keep
// the previous parameters and are reported, not fatal.
func (c *Controller) Learn(now time.Time) error {
	c.mu.Lock()
	samples := c.history.Samples()
	c.mu.Unlock()
	err := c.model.Fit(samples, now)
	if err != nil {
		c.log.Debugf("zone %s: model fit degraded (%d samples): %v", c.cfg.ID, len(samples), err)
	}
	return err
}

// History exposes the retained observation log.
func (c *Controller) History() *model.ThermalHistory {
	return c.history
}

// SeedHistory replays persisted samples at startup.
func (c *Controller) SeedHistory(samples []model.ThermalState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range samples {
		c.history.Append(s)
	}
}
