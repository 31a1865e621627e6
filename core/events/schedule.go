package events

import (
	"time"

	"github.com/kilianp07/scanplan/core/model"
)

// ScheduleEvent is published after a run persisted a schedule. Schedule is
// the full canonical schedule; Added holds only the entries placed by the run
// and CheckIn their check-in times keyed by scan id.
type ScheduleEvent struct {
	RunID    string
	Facility string
	Schedule []model.ScheduleEntry
	Added    []model.ScheduleEntry
	CheckIn  map[string]time.Time
	Time     time.Time
}
