package model

import (
	"time"

	"github.com/google/uuid"
)

// PlanFlag annotates a plan with a degradation the caller should surface.
type PlanFlag string

const (
	// FlagDataUnavailable marks a plan computed from cached, extended or
	// otherwise degraded external data (prices, sensor readings).
	FlagDataUnavailable PlanFlag = "data_unavailable"
	// FlagModelDegraded marks a plan computed with default or low-confidence
	// thermal parameters.
	FlagModelDegraded PlanFlag = "model_degraded"
	// FlagRelaxedBounds marks a plan where comfort bounds had to be widened
	// to find a feasible path.
	FlagRelaxedBounds PlanFlag = "relaxed_bounds"
)

// PlanStep assigns a heating level to one timestep of the horizon.
type PlanStep struct {
	Timestamp time.Time    `json:"timestamp"`
	Level     HeatingLevel `json:"level"`
	// PredictedTemp is the model's expected indoor temperature at the end
	// of the step.
	PredictedTemp float64 `json:"predicted_temp"`
	// CostEstimate is price(t) times the energy drawn during the step.
	CostEstimate float64 `json:"cost_estimate"`
}

// RelaxedWindow reports how far a comfort window had to be widened.
type RelaxedWindow struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	ByDegC  float64   `json:"by_deg_c"`
	MinTemp float64   `json:"min_temp"`
}

// ActionPlan is the output of one planning cycle: a heating level per
// timestep over the horizon. Plans are immutable once committed; a new
// cycle supersedes the previous plan instead of patching it.
type ActionPlan struct {
	ID        uuid.UUID       `json:"id"`
	ZoneID    string          `json:"zone_id"`
	CreatedAt time.Time       `json:"created_at"`
	Step      time.Duration   `json:"step"`
	Steps     []PlanStep      `json:"steps"`
	Flags     []PlanFlag      `json:"flags,omitempty"`
	Relaxed   []RelaxedWindow `json:"relaxed,omitempty"`
	// TotalCost is the predicted energy cost of the full plan.
	TotalCost float64 `json:"total_cost"`
}

// NewActionPlan allocates an empty plan with a fresh identifier.
func NewActionPlan(zoneID string, step time.Duration, createdAt time.Time) ActionPlan {
	return ActionPlan{ID: uuid.New(), ZoneID: zoneID, Step: step, CreatedAt: createdAt}
}

// StepAt returns the plan step in effect at t, false when t falls outside
// the plan horizon.
func (p ActionPlan) StepAt(t time.Time) (PlanStep, bool) {
	if len(p.Steps) == 0 {
		return PlanStep{}, false
	}
	start := p.Steps[0].Timestamp
	end := p.Steps[len(p.Steps)-1].Timestamp.Add(p.Step)
	if t.Before(start) || !t.Before(end) {
		return PlanStep{}, false
	}
	return p.Steps[int(t.Sub(start)/p.Step)], true
}

// HasFlag reports whether the plan carries the given degradation flag.
func (p ActionPlan) HasFlag(f PlanFlag) bool {
	for _, x := range p.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// SavingsRecord compares realized cost against the no-optimization baseline
// for one completed period. Records are append-only; corrections from late
// price data produce a new record rather than mutating an existing one.
type SavingsRecord struct {
	ZoneID       string    `json:"zone_id"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	RealizedCost float64   `json:"realized_cost"`
	BaselineCost float64   `json:"baseline_cost"`
	RealizedKWh  float64   `json:"realized_kwh"`
	BaselineKWh  float64   `json:"baseline_kwh"`
	// Correction marks a re-computation appended after late-arriving data.
	Correction bool `json:"correction"`
}

// SavedCost returns baseline minus realized cost.
func (r SavingsRecord) SavedCost() float64 { return r.BaselineCost - r.RealizedCost }

// SavedPercent returns the saving as a percentage of the baseline, zero
// when the baseline is zero.
func (r SavingsRecord) SavedPercent() float64 {
	if r.BaselineCost == 0 {
		return 0
	}
	return 100 * r.SavedCost() / r.BaselineCost
}
