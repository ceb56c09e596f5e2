// Package metrics defines the sink interface the core reports through.
// Implementations (Prometheus, InfluxDB) live in infra/metrics.
package metrics

import (
	"time"

	"github.com/viklund/heatopt/core/model"
)

// PlanEvent describes one completed planning cycle.
type PlanEvent struct {
	ZoneID         string
	PlanID         string
	Trigger        string
	Cost           float64
	RelaxedWindows int
	Flags          []model.PlanFlag
	ComputeTime    time.Duration
}

// ZoneSample is one telemetry snapshot of a zone.
type ZoneSample struct {
	ZoneID    string
	Timestamp time.Time
	Temp      float64
	Outdoor   float64
	Level     model.HeatingLevel
	Price     float64
	// ModelConfidence, ModelMAE and Observations report thermal model
	// quality. ModelMAE is the one-step mean absolute prediction error over
	// retained history, zero while too little history exists.
	ModelConfidence float64
	ModelMAE        float64
	Observations    int
}

// MetricsSink records planning activity and zone telemetry.
type MetricsSink interface {
	RecordPlan(PlanEvent) error
	RecordZoneSample(ZoneSample) error
	RecordSavings(model.SavingsRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordPlan(PlanEvent) error              { return nil }
func (NopSink) RecordZoneSample(ZoneSample) error       { return nil }
func (NopSink) RecordSavings(model.SavingsRecord) error { return nil }
