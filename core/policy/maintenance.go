package policy

import (
	"fmt"
	"time"

	"github.com/kilianp07/scanplan/core/model"
)

// MaintenanceOptions controls InsertMaintenance.
type MaintenanceOptions struct {
	// Every is the number of scans between two maintenance blocks.
	Every int
	// Duration is the length of a block.
	Duration time.Duration
}

// DefaultMaintenance inserts one hour of maintenance after every 20 scans.
var DefaultMaintenance = MaintenanceOptions{Every: 20, Duration: 60 * time.Minute}

// MaintenanceID names the block following the count-th scan of a machine.
func MaintenanceID(machine string, count int) string {
	return fmt.Sprintf("maintenance_%s_%d", machine, count)
}

// InsertMaintenance appends a maintenance block right after the end of every
// Every-th non maintenance entry of each machine. Maintenance entries already
// present are kept but not counted. Options with a non positive Every leave
// the schedule untouched apart from sorting.
func InsertMaintenance(entries []model.ScheduleEntry, opts MaintenanceOptions) []model.ScheduleEntry {
	groups, machines := model.GroupByMachine(entries)
	out := make([]model.ScheduleEntry, 0, len(entries)+len(entries)/max(opts.Every, 1))
	minutes := int(opts.Duration / time.Minute)
	for _, m := range machines {
		count := 0
		for _, e := range groups[m] {
			out = append(out, e)
			if e.IsMaintenance() || opts.Every <= 0 {
				continue
			}
			count++
			if count%opts.Every != 0 {
				continue
			}
			out = append(out, model.ScheduleEntry{
				ScanID:    MaintenanceID(m, count),
				PatientID: model.MaintenancePatient,
				ScanType:  model.MaintenanceType,
				Machine:   m,
				Start:     e.End,
				End:       e.End.Add(opts.Duration),
				Priority:  model.PriorityImmediate,
				Duration:  minutes,
			})
		}
	}
	model.SortByMachine(out)
	return out
}

// StripMaintenance returns the entries that are not maintenance blocks.
func StripMaintenance(entries []model.ScheduleEntry) []model.ScheduleEntry {
	out := make([]model.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsMaintenance() {
			out = append(out, e)
		}
	}
	return out
}
