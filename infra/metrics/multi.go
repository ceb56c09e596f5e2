package metrics

import (
	coremetrics "github.com/viklund/heatopt/core/metrics"
	"github.com/viklund/heatopt/core/model"
)

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPlan forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordPlan(ev coremetrics.PlanEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPlan(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordZoneSample forwards the sample to all sinks.
func (m *MultiSink) RecordZoneSample(z coremetrics.ZoneSample) error {
	for _, s := range m.Sinks {
		if err := s.RecordZoneSample(z); err != nil {
			return err
		}
	}
	return nil
}

// RecordSavings forwards the record to all sinks.
func (m *MultiSink) RecordSavings(r model.SavingsRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordSavings(r); err != nil {
			return err
		}
	}
	return nil
}
