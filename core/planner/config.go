package planner

import "fmt"

// Mode selects how strongly the planner pulls toward the middle of the
// comfort window. Economy rides the lower bound, comfort pays for margin.
type Mode string

const (
	ModeEconomy  Mode = "economy"
	ModeBalanced Mode = "balanced"
	ModeComfort  Mode = "comfort"
)

// Config defines planning parameters loaded from configuration.
type Config struct {
	HorizonHours int `json:"horizon_hours"`
	StepMinutes  int `json:"step_minutes"`
	// TempResolution is the temperature discretization of the search, in
	// degrees C per bucket.
	TempResolution float64 `json:"temp_resolution"`
	// RelaxStepDegC widens infeasible comfort bounds by this much per
	// relaxation round.
	RelaxStepDegC float64 `json:"relax_step_deg_c"`
	MaxRelaxDegC  float64 `json:"max_relax_deg_c"`
	// FreezeFloorDegC is the absolute safety floor. It is never relaxed.
	FreezeFloorDegC float64 `json:"freeze_floor_deg_c"`
	// ComfortWeight is the currency-per-degree-hour penalty applied below
	// the window midpoint in balanced mode. Comfort mode quadruples it,
	// economy mode drops it entirely.
	ComfortWeight float64 `json:"comfort_weight"`
	// DriftThresholdDegC triggers replanning when measured temperature
	// diverges from the prediction by more than this.
	DriftThresholdDegC    float64 `json:"drift_threshold_deg_c"`
	ReplanIntervalMinutes int     `json:"replan_interval_minutes"`
	Mode                  Mode    `json:"mode"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.HorizonHours == 0 {
		c.HorizonHours = 24
	}
	if c.StepMinutes == 0 {
		c.StepMinutes = 15
	}
	if c.TempResolution == 0 {
		c.TempResolution = 0.1
	}
	if c.RelaxStepDegC == 0 {
		c.RelaxStepDegC = 0.5
	}
	if c.MaxRelaxDegC == 0 {
		c.MaxRelaxDegC = 3
	}
	if c.FreezeFloorDegC == 0 {
		c.FreezeFloorDegC = 7
	}
	if c.ComfortWeight == 0 {
		c.ComfortWeight = 0.02
	}
	if c.DriftThresholdDegC == 0 {
		c.DriftThresholdDegC = 1.5
	}
	if c.ReplanIntervalMinutes == 0 {
		c.ReplanIntervalMinutes = 60
	}
	if c.Mode == "" {
		c.Mode = ModeBalanced
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.StepMinutes <= 0 || c.HorizonHours <= 0 {
		return fmt.Errorf("planner: horizon and step must be positive")
	}
	if c.HorizonHours*60%c.StepMinutes != 0 {
		return fmt.Errorf("planner: step %dm does not divide horizon %dh", c.StepMinutes, c.HorizonHours)
	}
	switch c.Mode {
	case ModeEconomy, ModeBalanced, ModeComfort:
	default:
		return fmt.Errorf("planner: unknown mode %q", c.Mode)
	}
	return nil
}

// comfortBias returns the effective midpoint-pull weight for the mode.
func (c Config) comfortBias() float64 {
	switch c.Mode {
	case ModeEconomy:
		return 0
	case ModeComfort:
		return 4 * c.ComfortWeight
	default:
		return c.ComfortWeight
	}
}
