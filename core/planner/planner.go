package planner

import (
	"math"
	"time"

	"github.com/viklund/heatopt/core/comfort"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/thermal"
)

// Request bundles the snapshots one planning cycle operates on. The planner
// performs no I/O: prices, sensor state and forecasts are fetched by the
// caller beforehand.
type Request struct {
	Zone   model.ZoneConfig
	Model  *thermal.Model
	Policy *comfort.Policy
	Prices model.PriceCurve
	// Outdoor holds the forecast outdoor temperature per step. Shorter
	// slices are extended by carrying the last value forward.
	Outdoor     []float64
	Start       time.Time
	CurrentTemp float64
	// CurrentLevel and StepsAtLevel seed the dwell constraint with the
	// actuator state already in effect.
	CurrentLevel model.HeatingLevel
	StepsAtLevel int
}

// Planner computes least-cost feasible heating plans via dynamic
// programming over a discretized (timestep, level, temperature) state space.
type Planner struct {
	cfg Config
}

// New creates a Planner. The configuration is expected to be validated.
func New(cfg Config) *Planner {
	cfg.SetDefaults()
	return &Planner{cfg: cfg}
}

// Config returns the planner configuration.
func (p *Planner) Config() Config { return p.cfg }

// softDeficitWeight prices shortfall against the original lower bound, in
// relaxed climbs as well as the last-resort round where the bound is fully
// soft. High enough that any affordable heating beats staying cold.
const softDeficitWeight = 1.0

// Plan computes the least-cost action plan over the configured horizon.
// Comfort bounds are hard constraints first; if unreachable they are widened
// by RelaxStepDegC per round up to MaxRelaxDegC, and as a last resort the
// lower bound becomes a priced soft constraint. Relaxation is grace for
// states still climbing toward the window: a state that has reached the
// original lower bound may not sag back below it, and any shortfall against
// the original bound is priced in every round. The freeze-protection floor
// is never relaxed. Identical inputs yield identical plans.
func (p *Planner) Plan(req Request) (model.ActionPlan, error) {
	steps := p.cfg.HorizonHours * 60 / p.cfg.StepMinutes
	dt := time.Duration(p.cfg.StepMinutes) * time.Minute

	in := p.buildInputs(req, steps, dt)

	for relax := 0.0; relax <= p.cfg.MaxRelaxDegC+1e-9; relax += p.cfg.RelaxStepDegC {
		levels, ok := p.solve(req, in, relax, false)
		if ok {
			return p.assemble(req, in, levels, relax, dt)
		}
	}
	// Bounds are physically unreachable. Keep the floor hard, price the
	// deficit, and always return a complete plan.
	levels, ok := p.solve(req, in, p.cfg.MaxRelaxDegC, true)
	if !ok {
		return model.ActionPlan{}, model.ErrInfeasiblePlan
	}
	return p.assemble(req, in, levels, p.cfg.MaxRelaxDegC, dt)
}

// inputs holds the per-step snapshots the search runs on.
type inputs struct {
	steps     int
	times     []time.Time
	prices    []float64
	outdoor   []float64
	bounds    []comfort.Bounds
	priceGaps bool
}

func (p *Planner) buildInputs(req Request, steps int, dt time.Duration) inputs {
	in := inputs{steps: steps}
	in.times = make([]time.Time, steps)
	in.prices = make([]float64, steps)
	in.outdoor = make([]float64, steps)
	in.bounds = make([]comfort.Bounds, steps)

	lastPrice := 0.0
	if len(req.Prices.Points) > 0 {
		lastPrice = req.Prices.Points[0].Price
	} else {
		in.priceGaps = true
	}
	lastOut := req.CurrentTemp
	if len(req.Outdoor) > 0 {
		lastOut = req.Outdoor[0]
	}
	for i := 0; i < steps; i++ {
		ts := req.Start.Add(time.Duration(i) * dt)
		in.times[i] = ts
		if pr, ok := req.Prices.At(ts); ok {
			lastPrice = pr
		} else {
			in.priceGaps = true
		}
		in.prices[i] = lastPrice
		if i < len(req.Outdoor) {
			lastOut = req.Outdoor[i]
		}
		in.outdoor[i] = lastOut
		in.bounds[i] = req.Policy.BoundsAt(ts)
	}
	return in
}

// solve runs the DP for one relaxation round. It returns the chosen level
// per step and false when no feasible terminal state exists.
func (p *Planner) solve(req Request, in inputs, relax float64, softLower bool) ([]model.HeatingLevel, bool) {
	res := p.cfg.TempResolution
	dt := time.Duration(p.cfg.StepMinutes) * time.Minute
	hours := dt.Hours()
	levels := req.Zone.ActionLevels
	nLevels := len(levels)

	floor := p.cfg.FreezeFloorDegC
	hi := floor
	for _, b := range in.bounds {
		if b.Max+p.cfg.MaxRelaxDegC > hi {
			hi = b.Max + p.cfg.MaxRelaxDegC
		}
	}
	if req.CurrentTemp > hi {
		hi = req.CurrentTemp
	}
	hi += 2 * res
	nBuckets := int((hi-floor)/res) + 1

	dwellSteps := (req.Zone.MinDwellMinutes + p.cfg.StepMinutes - 1) / p.cfg.StepMinutes
	if dwellSteps < 1 {
		dwellSteps = 1
	}
	nStates := nBuckets * nLevels * dwellSteps
	idx := func(bucket, lvl, dwell int) int {
		return (bucket*nLevels+lvl)*dwellSteps + (dwell - 1)
	}

	const inf = math.MaxFloat64
	cost := make([]float64, nStates)
	wear := make([]float64, nStates)
	nextCost := make([]float64, nStates)
	nextWear := make([]float64, nStates)
	parents := make([][]int32, in.steps) // predecessor state per step
	choices := make([][]int8, in.steps)  // level picked entering each step
	for i := range cost {
		cost[i] = inf
	}

	startLvl := levelIndex(levels, req.CurrentLevel)
	startDwell := req.StepsAtLevel
	if startDwell < 1 {
		startDwell = 1
	}
	if startDwell > dwellSteps {
		startDwell = dwellSteps
	}
	startBucket := bucketOf(req.CurrentTemp, floor, res, nBuckets)
	cost[idx(startBucket, startLvl, startDwell)] = 0

	bias := p.cfg.comfortBias()
	powerKW := req.Zone.HeaterPowerKW

	for i := 0; i < in.steps; i++ {
		for j := range nextCost {
			nextCost[j] = inf
		}
		parents[i] = make([]int32, nStates)
		choices[i] = make([]int8, nStates)
		b := in.bounds[i]
		lower := b.Min - relax
		if lower < floor {
			lower = floor
		}
		upper := b.Max + relax

		for bucket := 0; bucket < nBuckets; bucket++ {
			temp := floor + float64(bucket)*res
			// A state at or above the original lower bound gets no
			// relaxation grace: it must hold the window it reached.
			hardLower := lower
			if temp >= b.Min-1e-9 {
				hardLower = b.Min
			}
			for lvl := 0; lvl < nLevels; lvl++ {
				for dwell := 1; dwell <= dwellSteps; dwell++ {
					from := idx(bucket, lvl, dwell)
					c := cost[from]
					if c == inf {
						continue
					}
					for nl := 0; nl < nLevels; nl++ {
						if nl != lvl && dwell < dwellSteps {
							continue // dwell not served, cannot switch
						}
						next := req.Model.Step(temp, in.outdoor[i], levels[nl], dt)
						if next < floor {
							continue // freeze floor is absolute
						}
						deficit := 0.0
						if next < b.Min {
							if !softLower && next < hardLower {
								continue
							}
							deficit = b.Min - next
						}
						if next > upper+res/2 {
							continue
						}
						nb := bucketOf(next, floor, res, nBuckets)
						nd := 1
						if nl == lvl {
							nd = dwell + 1
							if nd > dwellSteps {
								nd = dwellSteps
							}
						}
						energy := powerKW * float64(levels[nl]) * hours
						stepCost := in.prices[i] * energy
						if mid := b.Mid(); next < mid {
							stepCost += bias * (mid - next) * hours
						}
						stepCost += softDeficitWeight * deficit * hours
						d := float64(levels[nl]) - float64(levels[lvl])
						stepWear := wear[from] + d*d
						to := idx(nb, nl, nd)
						nc := c + stepCost
						if nextCost[to] == inf || better(nc, stepWear, nl, nextCost[to], nextWear[to], int(choices[i][to])) {
							nextCost[to] = nc
							nextWear[to] = stepWear
							parents[i][to] = int32(from)
							choices[i][to] = int8(nl)
						}
					}
				}
			}
		}
		cost, nextCost = nextCost, cost
		wear, nextWear = nextWear, wear
	}

	// Pick the cheapest feasible terminal state; scan order keeps the
	// selection deterministic.
	best := -1
	for s := 0; s < nStates; s++ {
		if cost[s] == inf {
			continue
		}
		if best == -1 || better(cost[s], wear[s], 0, cost[best], wear[best], 0) {
			best = s
		}
	}
	if best == -1 {
		return nil, false
	}

	out := make([]model.HeatingLevel, in.steps)
	state := int32(best)
	for i := in.steps - 1; i >= 0; i-- {
		out[i] = levels[choices[i][state]]
		state = parents[i][state]
	}
	return out, true
}

// assemble turns the chosen level sequence into an immutable ActionPlan
// with the predicted trajectory, per-step cost and degradation flags.
func (p *Planner) assemble(req Request, in inputs, levels []model.HeatingLevel, relax float64, dt time.Duration) (model.ActionPlan, error) {
	plan := model.NewActionPlan(req.Zone.ID, dt, req.Start)
	traj, carryForward := req.Model.Predict(req.CurrentTemp, levels, in.outdoor, dt)
	hours := dt.Hours()

	plan.Steps = make([]model.PlanStep, len(levels))
	for i, lvl := range levels {
		cost := in.prices[i] * req.Zone.HeaterPowerKW * float64(lvl) * hours
		plan.Steps[i] = model.PlanStep{
			Timestamp:     in.times[i],
			Level:         lvl,
			PredictedTemp: traj[i],
			CostEstimate:  cost,
		}
		plan.TotalCost += cost
	}

	if in.priceGaps || req.Prices.Stale {
		plan.Flags = append(plan.Flags, model.FlagDataUnavailable)
	}
	if req.Model.Degraded() || carryForward {
		plan.Flags = append(plan.Flags, model.FlagModelDegraded)
	}
	if relax > 0 {
		plan.Relaxed = relaxedWindows(in, traj)
		if len(plan.Relaxed) > 0 {
			plan.Flags = append(plan.Flags, model.FlagRelaxedBounds)
		}
	}
	return plan, nil
}

// relaxedWindows reports the contiguous ranges where the predicted
// trajectory escapes the original comfort bounds, and by how much.
func relaxedWindows(in inputs, traj []float64) []model.RelaxedWindow {
	var out []model.RelaxedWindow
	var cur *model.RelaxedWindow
	for i, t := range traj {
		dev := 0.0
		if t < in.bounds[i].Min {
			dev = in.bounds[i].Min - t
		} else if t > in.bounds[i].Max {
			dev = t - in.bounds[i].Max
		}
		if dev > 1e-9 {
			if cur == nil {
				out = append(out, model.RelaxedWindow{From: in.times[i], MinTemp: t})
				cur = &out[len(out)-1]
			}
			if dev > cur.ByDegC {
				cur.ByDegC = dev
			}
			if t < cur.MinTemp {
				cur.MinTemp = t
			}
			cur.To = in.times[i]
		} else {
			cur = nil
		}
	}
	return out
}

func levelIndex(levels []model.HeatingLevel, l model.HeatingLevel) int {
	best := 0
	bestDiff := math.Inf(1)
	for i, x := range levels {
		d := math.Abs(float64(x) - float64(l))
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

func bucketOf(t, floor, res float64, nBuckets int) int {
	b := int(math.Round((t - floor) / res))
	if b < 0 {
		b = 0
	}
	if b >= nBuckets {
		b = nBuckets - 1
	}
	return b
}

// better implements the deterministic tie-break: primary cost, then level
// variance (wear), then the lower level.
func better(cost, wear float64, lvl int, curCost, curWear float64, curLvl int) bool {
	const eps = 1e-9
	if cost < curCost-eps {
		return true
	}
	if cost > curCost+eps {
		return false
	}
	if wear < curWear-eps {
		return true
	}
	if wear > curWear+eps {
		return false
	}
	return lvl < curLvl
}
