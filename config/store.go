package config

import "fmt"

// StoreConfig defines the persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file location.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "heatopt.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store: path is required")
	}
	return nil
}
