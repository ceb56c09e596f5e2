package thermal

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/viklund/heatopt/core/model"
)

// fitHalfLife controls the exponential weighting of history samples: a
// sample this old counts half as much as a fresh one. Recent data dominates
// so the model tracks seasonal and structural drift (open windows, new
// furniture) within a couple of days.
const fitHalfLife = 48 * time.Hour

// Physical plausibility clamps for fitted parameters.
const (
	minLossPerHour = 0.01
	maxLossPerHour = 1.0
	minGainPerHour = 0.2
	maxGainPerHour = 15.0
)

// Fit refits the parameters from observed history using exponentially
// weighted least squares on the one-step temperature deltas:
//
//	dT = loss*(outdoor-indoor)*h + gain*level*h
//
// Degenerate data (too few samples, zero variance, implausible solution)
// never panics: the previous parameters are kept, confidence is lowered and
// ErrModelDegraded returned.
func (m *Model) Fit(samples []model.ThermalState, now time.Time) error {
	if len(samples) < MinFitSamples {
		m.params.Observations = len(samples)
		m.params.Confidence = 0
		return model.ErrModelDegraded
	}

	var rows [][3]float64 // loss regressor, gain regressor, response
	var weights []float64
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		h := cur.Timestamp.Sub(prev.Timestamp).Hours()
		if h <= 0 || h > 6 {
			continue // reject gaps, the linearization does not hold
		}
		age := now.Sub(cur.Timestamp)
		w := math.Exp2(-age.Hours() / fitHalfLife.Hours())
		rows = append(rows, [3]float64{
			(prev.OutdoorTemp - prev.IndoorTemp) * h,
			float64(prev.Level) * h,
			cur.IndoorTemp - prev.IndoorTemp,
		})
		weights = append(weights, w)
	}
	if len(rows) < MinFitSamples-1 {
		return m.degrade(len(samples))
	}

	// Zero variance in either regressor makes the system singular. This
	// happens with a constant heating level or flat indoor/outdoor delta.
	if columnSpread(rows, 0) < 1e-9 || columnSpread(rows, 1) < 1e-9 {
		return m.degrade(len(samples))
	}

	x := mat.NewDense(len(rows), 2, nil)
	y := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		sw := math.Sqrt(weights[i])
		x.Set(i, 0, r[0]*sw)
		x.Set(i, 1, r[1]*sw)
		y.SetVec(i, r[2]*sw)
	}
	var sol mat.VecDense
	if err := sol.SolveVec(x, y); err != nil {
		return m.degrade(len(samples))
	}
	loss, gain := sol.AtVec(0), sol.AtVec(1)
	if loss < minLossPerHour || loss > maxLossPerHour || gain < minGainPerHour || gain > maxGainPerHour {
		return m.degrade(len(samples))
	}

	m.params = Parameters{
		LossPerHour:  loss,
		GainPerHour:  gain,
		Confidence:   fitConfidence(x, y, &sol, len(samples)),
		Observations: len(samples),
		FittedAt:     now,
	}
	return nil
}

// degrade keeps the previous parameters but marks them untrustworthy.
func (m *Model) degrade(observations int) error {
	m.params.Observations = observations
	if m.params.Confidence > 0.25 {
		m.params.Confidence = 0.25
	}
	return model.ErrModelDegraded
}

// fitConfidence combines the R-squared of the fit with sample coverage.
func fitConfidence(x mat.Matrix, y *mat.VecDense, sol *mat.VecDense, observations int) float64 {
	n, _ := x.Dims()
	var fitted mat.VecDense
	fitted.MulVec(x, sol)
	var ssRes, ssTot, mean float64
	for i := 0; i < n; i++ {
		mean += y.AtVec(i)
	}
	mean /= float64(n)
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		ssRes += r * r
		d := y.AtVec(i) - mean
		ssTot += d * d
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	if r2 < 0 {
		r2 = 0
	}
	coverage := float64(observations) / float64(4*MinFitSamples)
	if coverage > 1 {
		coverage = 1
	}
	return r2 * coverage
}

func columnSpread(rows [][3]float64, col int) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		if r[col] < lo {
			lo = r[col]
		}
		if r[col] > hi {
			hi = r[col]
		}
	}
	return hi - lo
}
