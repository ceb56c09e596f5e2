package model

import (
	"fmt"
	"sort"
	"time"
)

// HeatingLevel is a normalized actuator output in [0,1]. Zero means off;
// intermediate values are only meaningful for modulating actuators.
type HeatingLevel float64

// ComfortWindow bounds the acceptable temperature over a daily time range.
// Start and End are minutes since midnight; End may wrap past midnight.
// When windows overlap, the highest priority wins.
type ComfortWindow struct {
	StartMinute int     `json:"start_minute"`
	EndMinute   int     `json:"end_minute"`
	MinTemp     float64 `json:"min_temp"`
	MaxTemp     float64 `json:"max_temp"`
	Priority    int     `json:"priority"`
}

// ZoneConfig is the configuration supplied at zone creation time.
type ZoneConfig struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	SensorRef      string          `json:"sensor_ref"`
	ActuatorRef    string          `json:"actuator_ref"`
	ComfortWindows []ComfortWindow `json:"comfort_windows"`
	// ActionLevels lists the discrete heating levels the actuator supports.
	// An on/off actuator declares [0, 1]; a modulating one may add steps.
	ActionLevels []HeatingLevel `json:"action_levels"`
	// HeaterPowerKW is the electrical power drawn at level 1.0.
	HeaterPowerKW   float64 `json:"heater_power_kw"`
	MinDwellMinutes int     `json:"min_dwell_minutes"`
	// GroupID links the zone to a shared thermal group, empty for none.
	GroupID string `json:"group_id"`
	// RetentionDays bounds the thermal history kept for model fitting.
	RetentionDays int `json:"retention_days"`
}

// ConfigError reports an invalid zone definition. It is the only fatal
// error class: zones with invalid configuration are never activated.
type ConfigError struct {
	ZoneID string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("zone %q: invalid configuration: %s", e.ZoneID, e.Reason)
}

// Validate checks the zone definition and normalizes its action levels.
func (c *ZoneConfig) Validate() error {
	if c.ID == "" {
		return &ConfigError{ZoneID: c.ID, Reason: "id is required"}
	}
	if c.SensorRef == "" {
		return &ConfigError{ZoneID: c.ID, Reason: "sensor_ref is required"}
	}
	if c.ActuatorRef == "" {
		return &ConfigError{ZoneID: c.ID, Reason: "actuator_ref is required"}
	}
	if c.HeaterPowerKW <= 0 {
		return &ConfigError{ZoneID: c.ID, Reason: "heater_power_kw must be positive"}
	}
	if c.MinDwellMinutes < 0 {
		return &ConfigError{ZoneID: c.ID, Reason: "min_dwell_minutes must not be negative"}
	}
	if len(c.ActionLevels) == 0 {
		c.ActionLevels = []HeatingLevel{0, 1}
	}
	sort.Slice(c.ActionLevels, func(i, j int) bool { return c.ActionLevels[i] < c.ActionLevels[j] })
	for _, l := range c.ActionLevels {
		if l < 0 || l > 1 {
			return &ConfigError{ZoneID: c.ID, Reason: fmt.Sprintf("action level %v outside [0,1]", l)}
		}
	}
	if c.ActionLevels[0] != 0 {
		return &ConfigError{ZoneID: c.ID, Reason: "action levels must include 0 (off)"}
	}
	for _, w := range c.ComfortWindows {
		if w.MinTemp >= w.MaxTemp {
			return &ConfigError{ZoneID: c.ID, Reason: fmt.Sprintf("comfort window [%v,%v] is empty", w.MinTemp, w.MaxTemp)}
		}
		if w.StartMinute < 0 || w.StartMinute >= 24*60 || w.EndMinute < 0 || w.EndMinute > 24*60 {
			return &ConfigError{ZoneID: c.ID, Reason: "comfort window minutes outside a day"}
		}
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 14
	}
	return nil
}

// SupportsLevels returns the discrete heating levels the actuator accepts.
// The planner consumes this capability instead of inspecting actuator types.
func (c *ZoneConfig) SupportsLevels() []HeatingLevel {
	out := make([]HeatingLevel, len(c.ActionLevels))
	copy(out, c.ActionLevels)
	return out
}

// ThermalGroup is an explicit grouping entity owning references to member
// zones that share one thermal model. Member zones never reference each other.
type ThermalGroup struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// SensorReading is a temperature measurement from the sensor boundary.
type SensorReading struct {
	ZoneID    string
	Temp      float64
	Timestamp time.Time
}

// Stale reports whether the reading is older than maxAge relative to now.
func (r SensorReading) Stale(now time.Time, maxAge time.Duration) bool {
	return r.Timestamp.IsZero() || now.Sub(r.Timestamp) > maxAge
}
