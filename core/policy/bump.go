package policy

import (
	"sort"

	"github.com/kilianp07/scanplan/core/model"
)

// BumpPriorityZero delays, on each machine, the entries that would start
// before a priority zero entry ends. A bumped entry keeps its duration and
// starts exactly when the previous one of the chain ends, so a single
// immediate scan can push several bookings forward. The chain stops at the
// first entry that no longer overlaps. Entries of other priorities never
// bump anything.
//
// The input is not modified. The result is sorted by machine then start.
func BumpPriorityZero(entries []model.ScheduleEntry) []model.ScheduleEntry {
	groups, machines := groupForCascade(entries)
	out := make([]model.ScheduleEntry, 0, len(entries))
	for _, m := range machines {
		appts := groups[m]
		for i := 0; i < len(appts); {
			if appts[i].Priority != model.PriorityImmediate || appts[i].IsMaintenance() {
				i++
				continue
			}
			end := appts[i].End
			j := i + 1
			for ; j < len(appts) && appts[j].Start.Before(end); j++ {
				appts[j] = appts[j].Shift(end)
				end = appts[j].End
			}
			i = j
		}
		out = append(out, appts...)
	}
	model.SortByMachine(out)
	return out
}

// groupForCascade copies entries per machine sorted by start. Ties put the
// more urgent entry first so an immediate scan wins a shared start minute.
func groupForCascade(entries []model.ScheduleEntry) (map[string][]model.ScheduleEntry, []string) {
	groups := make(map[string][]model.ScheduleEntry)
	for _, e := range entries {
		groups[e.Machine] = append(groups[e.Machine], e)
	}
	machines := make([]string, 0, len(groups))
	for m, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			if !g[i].Start.Equal(g[j].Start) {
				return g[i].Start.Before(g[j].Start)
			}
			return g[i].Priority < g[j].Priority
		})
		machines = append(machines, m)
	}
	sort.Strings(machines)
	return groups, machines
}
