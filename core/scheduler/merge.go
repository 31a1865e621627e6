package scheduler

import (
	"time"

	"github.com/kilianp07/scanplan/core/model"
)

// Partition splits existing entries at now+window. Entries starting before
// that instant are locked, including those already in the past.
func Partition(existing []model.ScheduleEntry, now time.Time, window time.Duration) (locked, open []model.ScheduleEntry) {
	cutoff := now.Add(window)
	for _, e := range existing {
		if e.Start.Before(cutoff) {
			locked = append(locked, e)
		} else {
			open = append(open, e)
		}
	}
	return locked, open
}

// Merge returns kept followed by the added entries whose scan id is not
// already kept, sorted by machine and start.
func Merge(kept, added []model.ScheduleEntry) []model.ScheduleEntry {
	out := make([]model.ScheduleEntry, 0, len(kept)+len(added))
	ids := make(map[string]bool, len(kept))
	for _, e := range kept {
		ids[e.ScanID] = true
		out = append(out, e)
	}
	for _, e := range added {
		if ids[e.ScanID] {
			continue
		}
		ids[e.ScanID] = true
		out = append(out, e)
	}
	model.SortByMachine(out)
	return out
}

func scanIDs(entries []model.ScheduleEntry) map[string]bool {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ScanID] = true
	}
	return ids
}

// Skip records a request left out of a run before planning.
type Skip struct {
	ScanID string `json:"scan_id"`
	Reason string `json:"reason"`
}

const (
	reasonLocked    = "inside lock window"
	reasonScheduled = "already scheduled"
	reasonDuplicate = "duplicate scan id in batch"
	reasonScanType  = "scan type not served by facility"
)

// admit filters the batch down to the requests that can be planned this
// run. Existing entries always win: a request whose scan id is already in
// the schedule is skipped and every existing entry is kept.
func admit(reqs []model.ScanRequest, topo model.Topology, locked, open []model.ScheduleEntry) (admitted []model.ScanRequest, kept []model.ScheduleEntry, skipped []Skip) {
	lockedIDs := scanIDs(locked)
	openIDs := scanIDs(open)
	seen := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		switch {
		case seen[r.ScanID]:
			skipped = append(skipped, Skip{ScanID: r.ScanID, Reason: reasonDuplicate})
			continue
		case lockedIDs[r.ScanID]:
			skipped = append(skipped, Skip{ScanID: r.ScanID, Reason: reasonLocked})
		case openIDs[r.ScanID]:
			skipped = append(skipped, Skip{ScanID: r.ScanID, Reason: reasonScheduled})
		case !topo.Has(r.ScanType):
			skipped = append(skipped, Skip{ScanID: r.ScanID, Reason: reasonScanType})
		default:
			if err := r.Validate(); err != nil {
				skipped = append(skipped, Skip{ScanID: r.ScanID, Reason: err.Error()})
			} else {
				admitted = append(admitted, r)
			}
		}
		seen[r.ScanID] = true
	}

	kept = make([]model.ScheduleEntry, 0, len(locked)+len(open))
	kept = append(kept, locked...)
	kept = append(kept, open...)
	return admitted, kept, skipped
}
