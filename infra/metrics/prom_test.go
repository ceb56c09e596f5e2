package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/viklund/heatopt/core/metrics"
	"github.com/viklund/heatopt/core/model"
)

func newTestPromSink(t *testing.T) *PromSink {
	t.Helper()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	return sink.(*PromSink)
}

func TestPromSinkRecordsZoneSample(t *testing.T) {
	s := newTestPromSink(t)
	err := s.RecordZoneSample(coremetrics.ZoneSample{
		ZoneID:          "living",
		Timestamp:       time.Now(),
		Temp:            20.4,
		Level:           0.5,
		Price:           0.23,
		ModelConfidence: 0.8,
		ModelMAE:        0.12,
		Observations:    96,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(s.zoneTemp.WithLabelValues("living")); got != 20.4 {
		t.Fatalf("temperature gauge = %v", got)
	}
	if got := testutil.ToFloat64(s.confidence.WithLabelValues("living")); got != 0.8 {
		t.Fatalf("confidence gauge = %v", got)
	}
	if got := testutil.ToFloat64(s.modelMAE.WithLabelValues("living")); got != 0.12 {
		t.Fatalf("mae gauge = %v", got)
	}
}

func TestPromSinkRecordsPlanFlags(t *testing.T) {
	s := newTestPromSink(t)
	err := s.RecordPlan(coremetrics.PlanEvent{
		ZoneID:  "living",
		Trigger: "cadence",
		Cost:    1.5,
		Flags:   []model.PlanFlag{model.FlagRelaxedBounds},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(s.plans.WithLabelValues("living", "cadence")); got != 1 {
		t.Fatalf("plans counter = %v", got)
	}
	if got := testutil.ToFloat64(s.relaxed.WithLabelValues("living")); got != 1 {
		t.Fatalf("relaxed counter = %v", got)
	}
}

func TestPromSinkSavingsCounterOnlyGrows(t *testing.T) {
	s := newTestPromSink(t)
	if err := s.RecordSavings(model.SavingsRecord{ZoneID: "living", BaselineCost: 3, RealizedCost: 2}); err != nil {
		t.Fatalf("record: %v", err)
	}
	// a lost period must not shrink the counter
	if err := s.RecordSavings(model.SavingsRecord{ZoneID: "living", BaselineCost: 1, RealizedCost: 2}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(s.savings.WithLabelValues("living")); got != 1 {
		t.Fatalf("savings counter = %v", got)
	}
}
