package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "heatopt"
  topic_prefix: "heatopt/home"
  ack_topic: "heatopt/home/ack"
  reading_topic: "heatopt/home/zone/+/temperature"
  use_tls: false
planner:
  horizon_hours: 24
  step_minutes: 15
  mode: "economy"
price:
  base_url: "http://localhost:8080/prices"
  area: "SE3"
store:
  path: "test.db"
zones:
  - id: "living"
    sensor_ref: "sensor.living"
    actuator_ref: "switch.living"
    heater_power_kw: 2.0
    min_dwell_minutes: 15
    comfort_windows:
      - start_minute: 360
        end_minute: 1320
        min_temp: 20
        max_temp: 22
  - id: "bedroom"
    sensor_ref: "sensor.bedroom"
    actuator_ref: "switch.bedroom"
    heater_power_kw: 1.0
groups:
  - id: "upstairs"
    members: ["living", "bedroom"]
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "heatopt"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "heatopt/home"},
		{"mode", string(cfg.Planner.Mode), "economy"},
		{"horizon", cfg.Planner.HorizonHours, 24},
		{"relax_default", cfg.Planner.RelaxStepDegC, 0.5},
		{"area", cfg.Price.Area, "SE3"},
		{"store_path", cfg.Store.Path, "test.db"},
		{"zones", len(cfg.Zones), 2},
		{"execute_default", cfg.Service.ExecuteIntervalMinutes, 15},
		{"group_members", len(cfg.Groups[0].Members), 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
	// zone validation normalized action levels
	if len(cfg.Zones[0].ActionLevels) != 2 || cfg.Zones[0].ActionLevels[0] != 0 {
		t.Errorf("action levels not defaulted: %v", cfg.Zones[0].ActionLevels)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("H_PLANNER__MODE", "comfort")
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if string(cfg.Planner.Mode) != "comfort" {
		t.Fatalf("env override not applied: %s", cfg.Planner.Mode)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no zones", `planner: {}
price: {base_url: "http://x", area: "SE3"}
`},
		{"duplicate zone", `price: {base_url: "http://x", area: "SE3"}
zones:
  - id: "a"
    sensor_ref: "s"
    actuator_ref: "ac"
    heater_power_kw: 1.0
  - id: "a"
    sensor_ref: "s2"
    actuator_ref: "ac2"
    heater_power_kw: 1.0
`},
		{"unknown group member", `price: {base_url: "http://x", area: "SE3"}
zones:
  - id: "a"
    sensor_ref: "s"
    actuator_ref: "ac"
    heater_power_kw: 1.0
groups:
  - id: "g"
    members: ["a", "ghost"]
`},
		{"missing area", `price: {base_url: "http://x"}
zones:
  - id: "a"
    sensor_ref: "s"
    actuator_ref: "ac"
    heater_power_kw: 1.0
`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, c.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
