package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/scanplan/core/model"
)

// FacilityConfig is the static description of an imaging facility as found
// in configuration files.
type FacilityConfig struct {
	Name string `json:"name" yaml:"name"`
	// Timezone is an IANA zone name used for check-in parsing, peak hours
	// and the persisted schedule. Empty means UTC.
	Timezone string               `json:"timezone" yaml:"timezone"`
	Machines []model.MachineGroup `json:"machines" yaml:"machines"`
	// DeadlineMinutes overrides the default deadline of priorities 1 to 5.
	DeadlineMinutes map[int]int64 `json:"deadline_minutes" yaml:"deadline_minutes"`
}

// Facility is a validated FacilityConfig.
type Facility struct {
	Name      string
	Topology  model.Topology
	Deadlines model.Deadlines
	Location  *time.Location
}

// Facility validates the configuration and resolves the time zone.
func (c FacilityConfig) Facility() (Facility, error) {
	if len(c.Machines) == 0 {
		return Facility{}, fmt.Errorf("facility %q: no machines configured", c.Name)
	}
	groups := make(map[string][]string, len(c.Machines))
	for _, g := range c.Machines {
		if _, dup := groups[g.ScanType]; dup {
			return Facility{}, fmt.Errorf("facility %q: scan type %s listed twice", c.Name, g.ScanType)
		}
		groups[g.ScanType] = g.Machines
	}
	topo, err := model.NewTopology(groups)
	if err != nil {
		return Facility{}, fmt.Errorf("facility %q: %w", c.Name, err)
	}

	deadlines := model.DefaultDeadlines
	for p, minutes := range c.DeadlineMinutes {
		if p < model.PriorityUrgent || p > model.PriorityLowest {
			return Facility{}, fmt.Errorf("facility %q: deadline for unknown priority %d", c.Name, p)
		}
		deadlines[p-1] = minutes
	}
	if err := deadlines.Validate(); err != nil {
		return Facility{}, fmt.Errorf("facility %q: %w", c.Name, err)
	}

	loc := time.UTC
	if c.Timezone != "" {
		if loc, err = time.LoadLocation(c.Timezone); err != nil {
			return Facility{}, fmt.Errorf("facility %q: timezone: %w", c.Name, err)
		}
	}
	return Facility{Name: c.Name, Topology: topo, Deadlines: deadlines, Location: loc}, nil
}

// LoadFacility loads a FacilityConfig from a JSON or YAML file.
func LoadFacility(path string) (FacilityConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return FacilityConfig{}, err
	}
	defer func() { _ = f.Close() }()
	return DecodeFacility(f, strings.TrimPrefix(filepath.Ext(path), "."))
}

// DecodeFacility reads from r to decode a FacilityConfig.
func DecodeFacility(r io.Reader, format string) (FacilityConfig, error) {
	var cfg FacilityConfig
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported format: %s", format)
	}
	return cfg, nil
}
