package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/scanplan/core/logger"
	"github.com/kilianp07/scanplan/core/solver"
)

// SolverConfig defines the solve budget.
type SolverConfig struct {
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
	// NodeLimit stops the search after that many nodes. Zero means no limit.
	NodeLimit int64 `json:"node_limit"`
	// DisableLPBound skips the root linear relaxation.
	DisableLPBound bool `json:"disable_lp_bound"`
	LPMaxVars      int  `json:"lp_max_vars"`
}

func (c *SolverConfig) SetDefaults() {
	if c.TimeLimitSeconds == 0 {
		c.TimeLimitSeconds = solver.DefaultTimeLimit.Seconds()
	}
	if c.LPMaxVars == 0 {
		c.LPMaxVars = solver.DefaultMaxLPVars
	}
}

func (c SolverConfig) Validate() error {
	if c.TimeLimitSeconds <= 0 {
		return fmt.Errorf("time_limit_seconds must be positive")
	}
	if c.NodeLimit < 0 {
		return fmt.Errorf("node_limit must not be negative")
	}
	if c.LPMaxVars < 0 {
		return fmt.Errorf("lp_max_vars must not be negative")
	}
	return nil
}

// TimeLimit returns the solve budget.
func (c SolverConfig) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSeconds * float64(time.Second))
}

// Build returns the configured solver.
func (c SolverConfig) Build(log logger.Logger) *solver.BranchAndBound {
	b := solver.NewBranchAndBound(c.TimeLimit(), log)
	b.NodeLimit = c.NodeLimit
	b.UseLPBound = !c.DisableLPBound
	if c.LPMaxVars > 0 {
		b.MaxLPVars = c.LPMaxVars
	}
	return b
}
