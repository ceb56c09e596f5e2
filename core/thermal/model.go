package thermal

import (
	"time"

	"github.com/viklund/heatopt/core/model"
)

// Parameters describe the first-order thermal response of a zone. Indoor
// temperature drifts toward the outdoor temperature at LossPerHour and is
// pushed up by heating at GainPerHour (at full level).
type Parameters struct {
	// LossPerHour is the fraction of the indoor/outdoor difference lost per
	// hour, in (0, 1].
	LossPerHour float64 `json:"loss_per_hour"`
	// GainPerHour is the heating rate in degrees C per hour at level 1.0.
	GainPerHour float64 `json:"gain_per_hour"`
	// Confidence in [0,1] reflects fit quality and sample count.
	Confidence   float64   `json:"confidence"`
	Observations int       `json:"observations"`
	FittedAt     time.Time `json:"fitted_at"`
}

// Conservative defaults used until a zone has accumulated enough history.
// The loss rate is deliberately high and the gain low, so default-parameter
// plans heat earlier rather than later.
const (
	DefaultLossPerHour = 0.25
	DefaultGainPerHour = 2.0
	// MinFitSamples is the history size below which fitting is skipped.
	MinFitSamples = 24
)

// DefaultParameters returns the documented conservative parameter set.
func DefaultParameters() Parameters {
	return Parameters{LossPerHour: DefaultLossPerHour, GainPerHour: DefaultGainPerHour, Confidence: 0}
}

// Model predicts a zone's temperature trajectory and refits its parameters
// from observed history. Predict is a pure function of the current
// parameters; Fit never panics on degenerate data.
type Model struct {
	params Parameters
}

// New creates a model with the given parameters. Zero-valued parameters are
// replaced by the defaults.
func New(p Parameters) *Model {
	if p.LossPerHour <= 0 || p.GainPerHour <= 0 {
		d := DefaultParameters()
		d.Observations = p.Observations
		p = d
	}
	return &Model{params: p}
}

// Parameters returns the current parameter set.
func (m *Model) Parameters() Parameters { return m.params }

// Degraded reports whether the model runs on defaults or a low-confidence fit.
func (m *Model) Degraded() bool {
	return m.params.Observations < MinFitSamples || m.params.Confidence < 0.5
}

// Step advances the temperature by one timestep under the given heating
// level and outdoor temperature.
func (m *Model) Step(indoor, outdoor float64, level model.HeatingLevel, dt time.Duration) float64 {
	h := dt.Hours()
	loss := m.params.LossPerHour * h
	if loss > 1 {
		loss = 1
	}
	return indoor + loss*(outdoor-indoor) + m.params.GainPerHour*h*float64(level)
}

// Predict returns the temperature trajectory for an action sequence. The
// outdoor slice may be shorter than the sequence; the last known value is
// carried forward and the degraded flag set.
func (m *Model) Predict(indoor float64, levels []model.HeatingLevel, outdoor []float64, dt time.Duration) (traj []float64, degraded bool) {
	traj = make([]float64, len(levels))
	out := 0.0
	if len(outdoor) > 0 {
		out = outdoor[0]
	} else {
		out = indoor // no exogenous data at all: assume no loss
		degraded = true
	}
	t := indoor
	for i, lvl := range levels {
		if i < len(outdoor) {
			out = outdoor[i]
		} else {
			degraded = true
		}
		t = m.Step(t, out, lvl, dt)
		traj[i] = t
	}
	return traj, degraded
}

// Accuracy returns the mean absolute error of one-step predictions over the
// given history, and false when fewer than two samples exist.
func (m *Model) Accuracy(samples []model.ThermalState) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}
	var sum float64
	var n int
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		dt := cur.Timestamp.Sub(prev.Timestamp)
		if dt <= 0 {
			continue
		}
		pred := m.Step(prev.IndoorTemp, prev.OutdoorTemp, prev.Level, dt)
		diff := pred - cur.IndoorTemp
		if diff < 0 {
			diff = -diff
		}
		sum += diff
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
