package model

import (
	"testing"
	"time"
)

func TestStepAt(t *testing.T) {
	start := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)
	p := NewActionPlan("living", 15*time.Minute, start)
	for i := 0; i < 4; i++ {
		p.Steps = append(p.Steps, PlanStep{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Level:     HeatingLevel(i % 2),
		})
	}

	if _, ok := p.StepAt(start.Add(-time.Minute)); ok {
		t.Fatal("before the horizon no step is due")
	}
	step, ok := p.StepAt(start.Add(20 * time.Minute))
	if !ok || step.Level != 1 {
		t.Fatalf("StepAt(+20m) = %+v, %v", step, ok)
	}
	if _, ok := p.StepAt(start.Add(time.Hour)); ok {
		t.Fatal("exclusive end must not yield a step")
	}
	if _, ok := (ActionPlan{}).StepAt(start); ok {
		t.Fatal("empty plan has no steps")
	}
}

func TestHasFlag(t *testing.T) {
	p := ActionPlan{Flags: []PlanFlag{FlagModelDegraded}}
	if !p.HasFlag(FlagModelDegraded) || p.HasFlag(FlagRelaxedBounds) {
		t.Fatalf("flag lookup wrong: %v", p.Flags)
	}
}

func TestSavingsRecordMath(t *testing.T) {
	r := SavingsRecord{RealizedCost: 6, BaselineCost: 8}
	if r.SavedCost() != 2 {
		t.Fatalf("saved = %v", r.SavedCost())
	}
	if r.SavedPercent() != 25 {
		t.Fatalf("percent = %v", r.SavedPercent())
	}
	if (SavingsRecord{}).SavedPercent() != 0 {
		t.Fatal("zero baseline must yield zero percent")
	}
}
