package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/viklund/heatopt/core/metrics"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/planner"
	"github.com/viklund/heatopt/infra/mqtt"
	"github.com/viklund/heatopt/infra/pricing"
)

type Config struct {
	MQTT    mqtt.Config          `json:"mqtt"`
	Planner planner.Config       `json:"planner"`
	Metrics metrics.Config       `json:"metrics"`
	Price   pricing.Config       `json:"price"`
	Store   StoreConfig          `json:"store"`
	Service ServiceConfig        `json:"service"`
	Zones   []model.ZoneConfig   `json:"zones"`
	Groups  []model.ThermalGroup `json:"groups"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("H_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "h_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Planner.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Price.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Service.SetDefaults()
	if err := cfg.Planner.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Price.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Service.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Zones) == 0 {
		return nil, fmt.Errorf("at least one zone must be configured")
	}
	seen := make(map[string]bool, len(cfg.Zones))
	for i := range cfg.Zones {
		if err := cfg.Zones[i].Validate(); err != nil {
			return nil, err
		}
		if seen[cfg.Zones[i].ID] {
			return nil, fmt.Errorf("duplicate zone id %q", cfg.Zones[i].ID)
		}
		seen[cfg.Zones[i].ID] = true
	}
	for _, g := range cfg.Groups {
		if len(g.Members) < 2 {
			return nil, fmt.Errorf("group %q needs at least two members", g.ID)
		}
		for _, m := range g.Members {
			if !seen[m] {
				return nil, fmt.Errorf("group %q references unknown zone %q", g.ID, m)
			}
		}
	}
	return &cfg, nil
}
