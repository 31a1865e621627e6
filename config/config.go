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

	"github.com/kilianp07/scanplan/core/metrics"
	"github.com/kilianp07/scanplan/core/runlog"
	"github.com/kilianp07/scanplan/core/scheduler"
	"github.com/kilianp07/scanplan/infra/mqtt"
)

// EnvPrefix marks environment overrides. SCANPLAN_SOLVER__TIME_LIMIT_SECONDS
// sets solver.time_limit_seconds.
const EnvPrefix = "SCANPLAN_"

type Config struct {
	Facility scheduler.FacilityConfig `json:"facility"`
	// FacilityFile loads the facility from a separate YAML or JSON file and
	// replaces the facility section.
	FacilityFile string           `json:"facility_file"`
	Scheduling   SchedulingConfig `json:"scheduling"`
	Solver       SolverConfig     `json:"solver"`
	Store        StoreConfig      `json:"store"`
	Runlog       runlog.Config    `json:"runlog"`
	Metrics      metrics.Config   `json:"metrics"`
	MQTT         mqtt.Config      `json:"mqtt"`
	Watch        WatchConfig      `json:"watch"`
	Logging      LoggingConfig    `json:"logging"`
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
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if cfg.FacilityFile != "" {
		fc, err := scheduler.LoadFacility(resolve(path, cfg.FacilityFile))
		if err != nil {
			return nil, fmt.Errorf("facility_file: %w", err)
		}
		cfg.Facility = fc
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Scheduling.SetDefaults()
	c.Solver.SetDefaults()
	c.Store.SetDefaults()
	c.Runlog.SetDefaults()
	c.Watch.SetDefaults()
	c.Logging.SetDefaults()
	c.MQTT.SetDefaults()
	if c.MQTT.Timezone == "" {
		c.MQTT.Timezone = c.Facility.Timezone
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if _, err := c.Facility.Facility(); err != nil {
		return err
	}
	checks := []struct {
		name string
		fn   func() error
	}{
		{"scheduling", c.Scheduling.Validate},
		{"solver", c.Solver.Validate},
		{"store", c.Store.Validate},
		{"runlog", c.Runlog.Validate},
		{"mqtt", c.MQTT.Validate},
		{"watch", c.Watch.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	return nil
}

// resolve makes rel relative to the directory of the config file.
func resolve(configPath, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(filepath.Dir(configPath), rel)
}
