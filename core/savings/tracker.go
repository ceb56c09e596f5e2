// Package savings measures what the optimizer earns. For each completed
// period it simulates a plain thermostat holding the comfort-window
// midpoint over the same realized prices, and records baseline versus
// realized cost in an append-only ledger.
package savings

import (
	"time"

	"github.com/viklund/heatopt/core/comfort"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/thermal"
)

// Store persists the savings ledger.
type Store interface {
	Add(model.SavingsRecord) error
	Query(zoneID string, start, end time.Time) ([]model.SavingsRecord, error)
}

// Tracker computes savings records for one zone.
type Tracker struct {
	zone   model.ZoneConfig
	policy *comfort.Policy
	store  Store
}

// NewTracker creates a tracker writing to store.
func NewTracker(zone model.ZoneConfig, policy *comfort.Policy, store Store) *Tracker {
	return &Tracker{zone: zone, policy: policy, store: store}
}

// hysteresis of the simulated reference thermostat, degrees C around the
// midpoint setpoint.
const baselineHysteresis = 0.3

// Settle computes the record for a completed period from the executed steps
// and the realized price curve, appends it to the ledger and returns it.
// Completed records are never mutated: late price corrections go through
// Correct instead.
func (t *Tracker) Settle(executed []model.PlanStep, prices model.PriceCurve, therm *thermal.Model, startTemp float64, outdoor []float64) (model.SavingsRecord, error) {
	rec := t.compute(executed, prices, therm, startTemp, outdoor)
	if t.store != nil {
		if err := t.store.Add(rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Correct recomputes a period after late-arriving price data and appends a
// correction record. The original record stays in the ledger untouched.
func (t *Tracker) Correct(executed []model.PlanStep, prices model.PriceCurve, therm *thermal.Model, startTemp float64, outdoor []float64) (model.SavingsRecord, error) {
	rec := t.compute(executed, prices, therm, startTemp, outdoor)
	rec.Correction = true
	if t.store != nil {
		if err := t.store.Add(rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func (t *Tracker) compute(executed []model.PlanStep, prices model.PriceCurve, therm *thermal.Model, startTemp float64, outdoor []float64) model.SavingsRecord {
	rec := model.SavingsRecord{ZoneID: t.zone.ID}
	if len(executed) == 0 {
		return rec
	}
	step := prices.Step
	if step <= 0 && len(executed) > 1 {
		step = executed[1].Timestamp.Sub(executed[0].Timestamp)
	}
	rec.PeriodStart = executed[0].Timestamp
	rec.PeriodEnd = executed[len(executed)-1].Timestamp.Add(step)
	hours := step.Hours()

	// Realized side: what the optimized plan actually drew.
	for _, s := range executed {
		price, _ := prices.At(s.Timestamp)
		kwh := t.zone.HeaterPowerKW * float64(s.Level) * hours
		rec.RealizedKWh += kwh
		rec.RealizedCost += price * kwh
	}

	// Baseline side: a thermostat holding the comfort midpoint with a
	// small hysteresis band, full power on, over the same conditions.
	temp := startTemp
	out := startTemp
	heating := false
	maxLevel := t.zone.ActionLevels[len(t.zone.ActionLevels)-1]
	for i, s := range executed {
		if i < len(outdoor) {
			out = outdoor[i]
		}
		setpoint := t.policy.BoundsAt(s.Timestamp).Mid()
		if temp < setpoint-baselineHysteresis {
			heating = true
		} else if temp > setpoint+baselineHysteresis {
			heating = false
		}
		lvl := model.HeatingLevel(0)
		if heating {
			lvl = maxLevel
		}
		price, _ := prices.At(s.Timestamp)
		kwh := t.zone.HeaterPowerKW * float64(lvl) * hours
		rec.BaselineKWh += kwh
		rec.BaselineCost += price * kwh
		temp = therm.Step(temp, out, lvl, step)
	}
	return rec
}

// Totals aggregates the ledger for a zone over [start, end). Corrections
// supersede the original record for the same period.
func (t *Tracker) Totals(start, end time.Time) (model.SavingsRecord, error) {
	total := model.SavingsRecord{ZoneID: t.zone.ID, PeriodStart: start, PeriodEnd: end}
	if t.store == nil {
		return total, nil
	}
	recs, err := t.store.Query(t.zone.ID, start, end)
	if err != nil {
		return total, err
	}
	effective := map[time.Time]model.SavingsRecord{}
	for _, r := range recs {
		if prev, ok := effective[r.PeriodStart]; !ok || (r.Correction && !prev.Correction) {
			effective[r.PeriodStart] = r
		}
	}
	for _, r := range effective {
		total.RealizedCost += r.RealizedCost
		total.BaselineCost += r.BaselineCost
		total.RealizedKWh += r.RealizedKWh
		total.BaselineKWh += r.BaselineKWh
	}
	return total, nil
}
