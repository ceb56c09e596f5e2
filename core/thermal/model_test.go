package thermal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/viklund/heatopt/core/model"
)

var fitNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// synthesize generates hourly samples from known parameters with a varying
// heating level and outdoor temperature.
func synthesize(p Parameters, n int) []model.ThermalState {
	m := New(p)
	samples := make([]model.ThermalState, 0, n)
	temp := 19.0
	for i := 0; i < n; i++ {
		ts := fitNow.Add(time.Duration(i-n) * time.Hour)
		outdoor := -5 + 5*math.Sin(float64(i)/7)
		level := model.HeatingLevel(0)
		if i%3 != 0 {
			level = model.HeatingLevel(float64(i%3) / 2)
		}
		samples = append(samples, model.ThermalState{
			Timestamp:   ts,
			IndoorTemp:  temp,
			OutdoorTemp: outdoor,
			Level:       level,
		})
		temp = m.Step(temp, outdoor, level, time.Hour)
	}
	return samples
}

func TestFitRecoversParameters(t *testing.T) {
	truth := Parameters{LossPerHour: 0.15, GainPerHour: 2.5}
	samples := synthesize(truth, 96)

	m := New(DefaultParameters())
	if err := m.Fit(samples, fitNow); err != nil {
		t.Fatalf("fit: %v", err)
	}
	got := m.Parameters()
	if math.Abs(got.LossPerHour-truth.LossPerHour) > 0.01 {
		t.Fatalf("loss = %.4f, want %.4f", got.LossPerHour, truth.LossPerHour)
	}
	if math.Abs(got.GainPerHour-truth.GainPerHour) > 0.05 {
		t.Fatalf("gain = %.4f, want %.4f", got.GainPerHour, truth.GainPerHour)
	}
	if got.Confidence < 0.5 {
		t.Fatalf("noiseless fit should be confident, got %.2f", got.Confidence)
	}
	if m.Degraded() {
		t.Fatal("model should not report degraded after a good fit")
	}
}

func TestFitTooFewSamples(t *testing.T) {
	m := New(DefaultParameters())
	samples := synthesize(Parameters{LossPerHour: 0.15, GainPerHour: 2.5}, MinFitSamples-1)
	err := m.Fit(samples, fitNow)
	if !errors.Is(err, model.ErrModelDegraded) {
		t.Fatalf("expected ErrModelDegraded, got %v", err)
	}
	got := m.Parameters()
	if got.LossPerHour != DefaultLossPerHour || got.GainPerHour != DefaultGainPerHour {
		t.Fatalf("defaults should be kept: %+v", got)
	}
	if !m.Degraded() {
		t.Fatal("expected degraded model")
	}
}

func TestFitConstantLevelKeepsPreviousParameters(t *testing.T) {
	prev := Parameters{LossPerHour: 0.12, GainPerHour: 1.9, Confidence: 0.9, Observations: 50}
	m := New(prev)

	// heating never changes, so the gain column has no variance
	samples := make([]model.ThermalState, 48)
	temp := 20.0
	for i := range samples {
		samples[i] = model.ThermalState{
			Timestamp:   fitNow.Add(time.Duration(i-48) * time.Hour),
			IndoorTemp:  temp,
			OutdoorTemp: -2,
			Level:       0.5,
		}
		temp = m.Step(temp, -2, 0.5, time.Hour)
	}
	err := m.Fit(samples, fitNow)
	if !errors.Is(err, model.ErrModelDegraded) {
		t.Fatalf("expected ErrModelDegraded, got %v", err)
	}
	got := m.Parameters()
	if got.LossPerHour != prev.LossPerHour || got.GainPerHour != prev.GainPerHour {
		t.Fatalf("previous parameters should survive a degenerate fit: %+v", got)
	}
	if got.Confidence > 0.25 {
		t.Fatalf("confidence should be lowered, got %.2f", got.Confidence)
	}
}

func TestFitRejectsLargeGaps(t *testing.T) {
	m := New(DefaultParameters())
	// samples 12h apart: every delta is rejected, leaving nothing to fit
	samples := make([]model.ThermalState, 30)
	for i := range samples {
		samples[i] = model.ThermalState{
			Timestamp:   fitNow.Add(time.Duration(12*(i-30)) * time.Hour),
			IndoorTemp:  20,
			OutdoorTemp: 0,
			Level:       model.HeatingLevel(i % 2),
		}
	}
	if err := m.Fit(samples, fitNow); !errors.Is(err, model.ErrModelDegraded) {
		t.Fatalf("expected ErrModelDegraded, got %v", err)
	}
}

func TestStepMovesTowardEquilibrium(t *testing.T) {
	m := New(Parameters{LossPerHour: 0.1, GainPerHour: 3})
	// equilibrium at full heat and 0 outdoor is gain/loss = 30
	temp := 20.0
	for i := 0; i < 200; i++ {
		temp = m.Step(temp, 0, 1, time.Hour)
	}
	if math.Abs(temp-30) > 0.1 {
		t.Fatalf("expected convergence to 30, got %.2f", temp)
	}
	// without heating the zone drifts to the outdoor temperature
	temp = 20
	for i := 0; i < 200; i++ {
		temp = m.Step(temp, -5, 0, time.Hour)
	}
	if math.Abs(temp-(-5)) > 0.1 {
		t.Fatalf("expected drift to -5, got %.2f", temp)
	}
}

func TestPredictCarriesOutdoorForward(t *testing.T) {
	m := New(Parameters{LossPerHour: 0.1, GainPerHour: 3})
	levels := []model.HeatingLevel{1, 1, 1, 1}
	traj, degraded := m.Predict(18, levels, []float64{-3, -3}, 30*time.Minute)
	if len(traj) != 4 {
		t.Fatalf("expected 4 points, got %d", len(traj))
	}
	if !degraded {
		t.Fatal("short outdoor forecast should mark the prediction degraded")
	}
	full, _ := m.Predict(18, levels, []float64{-3, -3, -3, -3}, 30*time.Minute)
	for i := range traj {
		if math.Abs(traj[i]-full[i]) > 1e-9 {
			t.Fatalf("carry forward mismatch at %d: %.4f vs %.4f", i, traj[i], full[i])
		}
	}
}

func TestAccuracyIsZeroOnPerfectModel(t *testing.T) {
	truth := Parameters{LossPerHour: 0.15, GainPerHour: 2.5}
	samples := synthesize(truth, 48)
	mae, ok := New(truth).Accuracy(samples)
	if !ok {
		t.Fatal("expected accuracy to be computable")
	}
	if mae > 1e-9 {
		t.Fatalf("perfect model should have zero error, got %v", mae)
	}
	wrong := New(Parameters{LossPerHour: 0.5, GainPerHour: 5})
	worse, _ := wrong.Accuracy(samples)
	if worse <= mae {
		t.Fatalf("wrong parameters should score worse: %v", worse)
	}
}

func TestNewReplacesZeroParameters(t *testing.T) {
	m := New(Parameters{})
	p := m.Parameters()
	if p.LossPerHour != DefaultLossPerHour || p.GainPerHour != DefaultGainPerHour {
		t.Fatalf("expected defaults, got %+v", p)
	}
}
