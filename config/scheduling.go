package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/scanplan/core/policy"
	"github.com/kilianp07/scanplan/core/scheduler"
)

// SchedulingConfig tunes the merge and the post-solve passes.
type SchedulingConfig struct {
	// LockWindowHours defaults to 48. A negative value locks nothing.
	LockWindowHours       float64           `json:"lock_window_hours"`
	HorizonPaddingMinutes int64             `json:"horizon_padding_minutes"`
	RequireOptimal        bool              `json:"require_optimal"`
	Maintenance           MaintenanceConfig `json:"maintenance"`
}

// MaintenanceConfig controls maintenance block insertion. Every set to a
// negative value disables it.
type MaintenanceConfig struct {
	Every           int    `json:"every"`
	DurationMinutes int    `json:"duration_minutes"`
	OnCollision     string `json:"on_collision"`
}

func (c *SchedulingConfig) SetDefaults() {
	if c.LockWindowHours == 0 {
		c.LockWindowHours = scheduler.DefaultLockWindow.Hours()
	}
	m := &c.Maintenance
	if m.Every == 0 {
		m.Every = policy.DefaultMaintenance.Every
	}
	if m.DurationMinutes == 0 {
		m.DurationMinutes = int(policy.DefaultMaintenance.Duration / time.Minute)
	}
	if m.OnCollision == "" {
		m.OnCollision = string(policy.CollisionAbort)
	}
}

func (c SchedulingConfig) Validate() error {
	if c.HorizonPaddingMinutes < 0 {
		return fmt.Errorf("horizon_padding_minutes must not be negative")
	}
	if c.Maintenance.Every > 0 && c.Maintenance.DurationMinutes <= 0 {
		return fmt.Errorf("maintenance.duration_minutes must be positive")
	}
	switch policy.CollisionPolicy(c.Maintenance.OnCollision) {
	case policy.CollisionAbort, policy.CollisionWarn:
	default:
		return fmt.Errorf("maintenance.on_collision must be %q or %q", policy.CollisionAbort, policy.CollisionWarn)
	}
	return nil
}

// Options converts the section into scheduler options.
func (c SchedulingConfig) Options() scheduler.Options {
	window := time.Duration(c.LockWindowHours * float64(time.Hour))
	if window < 0 {
		window = -1
	}
	return scheduler.Options{
		LockWindow:     window,
		HorizonPadding: c.HorizonPaddingMinutes,
		RequireOptimal: c.RequireOptimal,
		Maintenance: policy.MaintenanceOptions{
			Every:    c.Maintenance.Every,
			Duration: time.Duration(c.Maintenance.DurationMinutes) * time.Minute,
		},
		OnCollision: policy.CollisionPolicy(c.Maintenance.OnCollision),
	}
}
