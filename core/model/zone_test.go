package model

import (
	"errors"
	"testing"
	"time"
)

func validZone() ZoneConfig {
	return ZoneConfig{
		ID:            "living",
		SensorRef:     "sensor.living",
		ActuatorRef:   "switch.living",
		HeaterPowerKW: 2,
	}
}

func TestValidateDefaultsLevelsAndRetention(t *testing.T) {
	z := validZone()
	if err := z.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(z.ActionLevels) != 2 || z.ActionLevels[0] != 0 || z.ActionLevels[1] != 1 {
		t.Fatalf("expected on/off default, got %v", z.ActionLevels)
	}
	if z.RetentionDays != 14 {
		t.Fatalf("retention default = %d", z.RetentionDays)
	}
}

func TestValidateSortsLevels(t *testing.T) {
	z := validZone()
	z.ActionLevels = []HeatingLevel{1, 0.5, 0}
	if err := z.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if z.ActionLevels[0] != 0 || z.ActionLevels[1] != 0.5 || z.ActionLevels[2] != 1 {
		t.Fatalf("levels not sorted: %v", z.ActionLevels)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ZoneConfig)
	}{
		{"missing id", func(z *ZoneConfig) { z.ID = "" }},
		{"missing sensor", func(z *ZoneConfig) { z.SensorRef = "" }},
		{"missing actuator", func(z *ZoneConfig) { z.ActuatorRef = "" }},
		{"zero power", func(z *ZoneConfig) { z.HeaterPowerKW = 0 }},
		{"negative dwell", func(z *ZoneConfig) { z.MinDwellMinutes = -1 }},
		{"level above one", func(z *ZoneConfig) { z.ActionLevels = []HeatingLevel{0, 1.5} }},
		{"no off level", func(z *ZoneConfig) { z.ActionLevels = []HeatingLevel{0.5, 1} }},
		{"empty window", func(z *ZoneConfig) {
			z.ComfortWindows = []ComfortWindow{{MinTemp: 22, MaxTemp: 20}}
		}},
		{"window outside day", func(z *ZoneConfig) {
			z.ComfortWindows = []ComfortWindow{{StartMinute: 2000, MinTemp: 18, MaxTemp: 20}}
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			z := validZone()
			c.mutate(&z)
			err := z.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %T", err)
			}
		})
	}
}

func TestSensorReadingStale(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	r := SensorReading{Timestamp: now.Add(-10 * time.Minute)}
	if r.Stale(now, 30*time.Minute) {
		t.Fatal("recent reading must not be stale")
	}
	if !r.Stale(now, 5*time.Minute) {
		t.Fatal("old reading must be stale")
	}
	if !(SensorReading{}).Stale(now, time.Hour) {
		t.Fatal("zero reading must be stale")
	}
}
