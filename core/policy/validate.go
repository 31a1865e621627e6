package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kilianp07/scanplan/core/model"
)

// ErrInvariant is returned when a schedule breaks a rule that must hold
// before it is persisted.
var ErrInvariant = errors.New("schedule invariant violated")

// Overlap is a pair of entries sharing machine time.
type Overlap struct {
	Machine string
	First   model.ScheduleEntry
	Second  model.ScheduleEntry
}

func (o Overlap) String() string {
	return fmt.Sprintf("overlap on %s: scan %s overlaps with %s", o.Machine, o.First.ScanID, o.Second.ScanID)
}

// FindOverlaps lists every pair of entries that intersect on the same machine.
func FindOverlaps(entries []model.ScheduleEntry) []Overlap {
	groups, machines := model.GroupByMachine(entries)
	var out []Overlap
	for _, m := range machines {
		g := groups[m]
		for i := range g {
			for j := i + 1; j < len(g) && g[j].Start.Before(g[i].End); j++ {
				if g[i].Overlaps(g[j]) {
					out = append(out, Overlap{Machine: m, First: g[i], Second: g[j]})
				}
			}
		}
	}
	return out
}

// CollisionPolicy decides what happens when a maintenance block lands on a
// locked entry.
type CollisionPolicy string

const (
	CollisionAbort CollisionPolicy = "abort"
	CollisionWarn  CollisionPolicy = "warn"
)

// Scope tells Validate which scan ids were produced by this run and which
// are locked.
type Scope struct {
	Fresh  map[string]bool
	Locked map[string]bool
}

// Validate checks the final schedule. A freshly scheduled entry overlapping
// any other scan is always fatal. A maintenance block colliding with a
// locked entry is fatal under CollisionAbort. Every other overlap, such as
// ones already present in the persisted schedule, is returned as a warning.
func Validate(entries []model.ScheduleEntry, scope Scope, onCollision CollisionPolicy) ([]Overlap, error) {
	var warnings []Overlap
	var violations []string
	for _, o := range FindOverlaps(entries) {
		a, b := o.First, o.Second
		switch {
		case a.IsMaintenance() && b.IsMaintenance():
			warnings = append(warnings, o)
		case a.IsMaintenance() || b.IsMaintenance():
			other := a
			if a.IsMaintenance() {
				other = b
			}
			if scope.Locked[other.ScanID] && onCollision != CollisionWarn {
				violations = append(violations, o.String()+" (locked)")
				continue
			}
			warnings = append(warnings, o)
		case scope.Fresh[a.ScanID] || scope.Fresh[b.ScanID]:
			violations = append(violations, o.String())
		default:
			warnings = append(warnings, o)
		}
	}
	if len(violations) > 0 {
		return warnings, fmt.Errorf("%w: %s", ErrInvariant, strings.Join(violations, "; "))
	}
	return warnings, nil
}
