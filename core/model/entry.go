package model

import (
	"sort"
	"time"
)

const (
	// MaintenanceType marks synthetic maintenance blocks.
	MaintenanceType = "maintenance"
	// MaintenancePatient is the patient id sentinel carried by maintenance blocks.
	MaintenancePatient = "Maintenance"
)

// ScheduleEntry is one booking of a machine.
type ScheduleEntry struct {
	ScanID    string    `json:"scan_id" yaml:"scan_id"`
	PatientID string    `json:"patient_id" yaml:"patient_id"`
	ScanType  string    `json:"scan_type" yaml:"scan_type"`
	Machine   string    `json:"machine" yaml:"machine"`
	Start     time.Time `json:"start_time" yaml:"start_time"`
	End       time.Time `json:"end_time" yaml:"end_time"`
	Priority  int       `json:"priority" yaml:"priority"`
	Duration  int       `json:"duration" yaml:"duration"`
}

// IsMaintenance reports whether the entry is a synthetic maintenance block.
func (e ScheduleEntry) IsMaintenance() bool { return e.ScanType == MaintenanceType }

// Overlaps reports whether the half-open intervals [Start,End) intersect.
func (e ScheduleEntry) Overlaps(o ScheduleEntry) bool {
	return e.Start.Before(o.End) && o.Start.Before(e.End)
}

// Shift returns a copy of the entry moved to start at t, keeping its duration.
func (e ScheduleEntry) Shift(t time.Time) ScheduleEntry {
	e.Start = t
	e.End = t.Add(time.Duration(e.Duration) * time.Minute)
	return e
}

// SortByMachine orders entries by (machine, start, scan id).
func SortByMachine(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Machine != b.Machine {
			return a.Machine < b.Machine
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ScanID < b.ScanID
	})
}

// GroupByMachine splits entries per machine, each group sorted by start.
// The returned machine names are sorted.
func GroupByMachine(entries []ScheduleEntry) (map[string][]ScheduleEntry, []string) {
	groups := make(map[string][]ScheduleEntry)
	for _, e := range entries {
		groups[e.Machine] = append(groups[e.Machine], e)
	}
	names := make([]string, 0, len(groups))
	for m, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Start.Before(g[j].Start) })
		names = append(names, m)
	}
	sort.Strings(names)
	return groups, names
}
