package config

import (
	"fmt"
	"time"
)

// ServiceConfig tunes the run loop cadences.
type ServiceConfig struct {
	// ExecuteIntervalMinutes is how often due plan steps are emitted. It
	// normally equals the planning step.
	ExecuteIntervalMinutes int `json:"execute_interval_minutes"`
	// PriceRefreshMinutes is how often the spot price curve is refreshed.
	PriceRefreshMinutes int `json:"price_refresh_minutes"`
	// TelemetryIntervalSeconds paces zone samples pushed to the sinks.
	TelemetryIntervalSeconds int `json:"telemetry_interval_seconds"`
	// LearnIntervalHours is how often thermal models are refitted.
	LearnIntervalHours int `json:"learn_interval_hours"`
	// SettleHour is the local hour at which the previous day's savings are
	// settled.
	SettleHour int `json:"settle_hour"`
	// SensorMaxAgeMinutes marks readings older than this as unusable.
	SensorMaxAgeMinutes int `json:"sensor_max_age_minutes"`
	// AckTimeoutSeconds bounds the wait for setpoint acknowledgments.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *ServiceConfig) SetDefaults() {
	if c.ExecuteIntervalMinutes <= 0 {
		c.ExecuteIntervalMinutes = 15
	}
	if c.PriceRefreshMinutes <= 0 {
		c.PriceRefreshMinutes = 60
	}
	if c.TelemetryIntervalSeconds <= 0 {
		c.TelemetryIntervalSeconds = 60
	}
	if c.LearnIntervalHours <= 0 {
		c.LearnIntervalHours = 6
	}
	if c.SettleHour < 0 || c.SettleHour > 23 {
		c.SettleHour = 1
	}
	if c.SensorMaxAgeMinutes <= 0 {
		c.SensorMaxAgeMinutes = 30
	}
	if c.AckTimeoutSeconds <= 0 {
		c.AckTimeoutSeconds = 5
	}
}

// Validate checks mandatory fields.
func (c ServiceConfig) Validate() error {
	if c.ExecuteIntervalMinutes <= 0 {
		return fmt.Errorf("service: execute_interval_minutes must be positive")
	}
	return nil
}

// ExecuteInterval returns the execute cadence as a duration.
func (c ServiceConfig) ExecuteInterval() time.Duration {
	return time.Duration(c.ExecuteIntervalMinutes) * time.Minute
}

// SensorMaxAge returns the staleness cutoff as a duration.
func (c ServiceConfig) SensorMaxAge() time.Duration {
	return time.Duration(c.SensorMaxAgeMinutes) * time.Minute
}
