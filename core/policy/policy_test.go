package policy

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/scanplan/core/model"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func entry(id, machine string, start time.Time, minutes, priority int) model.ScheduleEntry {
	return model.ScheduleEntry{
		ScanID:    id,
		PatientID: "p-" + id,
		ScanType:  "MRI",
		Machine:   machine,
		Start:     start,
		End:       start.Add(time.Duration(minutes) * time.Minute),
		Priority:  priority,
		Duration:  minutes,
	}
}

func byID(entries []model.ScheduleEntry) map[string]model.ScheduleEntry {
	m := make(map[string]model.ScheduleEntry, len(entries))
	for _, e := range entries {
		m[e.ScanID] = e
	}
	return m
}

func TestBumpPriorityZero_Example(t *testing.T) {
	in := []model.ScheduleEntry{
		entry("C", "MRI1", at(9, 40), 30, 3),
		entry("A", "MRI1", at(9, 0), 30, 2),
		entry("B", "MRI1", at(9, 15), 30, 0),
	}
	out := byID(BumpPriorityZero(in))

	assert.Equal(t, at(9, 0), out["A"].Start)
	assert.Equal(t, at(9, 30), out["A"].End)
	assert.Equal(t, at(9, 15), out["B"].Start)
	assert.Equal(t, at(9, 45), out["B"].End)
	assert.Equal(t, at(9, 45), out["C"].Start)
	assert.Equal(t, at(10, 15), out["C"].End)
	assert.Equal(t, at(9, 40), in[0].Start, "input must not be modified")
}

func TestBumpPriorityZero_Chain(t *testing.T) {
	in := []model.ScheduleEntry{
		entry("P0", "CT1", at(8, 0), 60, 0),
		entry("X", "CT1", at(8, 30), 30, 2),
		entry("Y", "CT1", at(9, 20), 20, 5),
		entry("Z", "CT1", at(11, 0), 30, 1),
		entry("W", "CT2", at(8, 10), 30, 3),
	}
	out := byID(BumpPriorityZero(in))

	assert.Equal(t, at(9, 0), out["X"].Start)
	assert.Equal(t, at(9, 30), out["Y"].Start)
	assert.Equal(t, at(9, 50), out["Y"].End)
	assert.Equal(t, at(11, 0), out["Z"].Start, "chain stops at first free entry")
	assert.Equal(t, at(8, 10), out["W"].Start, "other machines untouched")
}

func TestBumpPriorityZero_OnlyImmediateBumps(t *testing.T) {
	in := []model.ScheduleEntry{
		entry("A", "MRI1", at(9, 0), 60, 1),
		entry("B", "MRI1", at(9, 30), 30, 2),
	}
	out := byID(BumpPriorityZero(in))
	assert.Equal(t, at(9, 30), out["B"].Start)
}

func TestBumpPriorityZero_SortedOutput(t *testing.T) {
	in := []model.ScheduleEntry{
		entry("b2", "B", at(10, 0), 10, 3),
		entry("a1", "A", at(11, 0), 10, 3),
		entry("b1", "B", at(9, 0), 10, 3),
	}
	out := BumpPriorityZero(in)
	ids := []string{out[0].ScanID, out[1].ScanID, out[2].ScanID}
	assert.Equal(t, []string{"a1", "b1", "b2"}, ids)
}

func sequence(machine string, n int) []model.ScheduleEntry {
	out := make([]model.ScheduleEntry, 0, n)
	start := at(7, 0)
	for i := 1; i <= n; i++ {
		out = append(out, entry(fmt.Sprintf("s%02d", i), machine, start, 15, 3))
		start = start.Add(30 * time.Minute)
	}
	return out
}

func TestInsertMaintenance_FortyOneEntries(t *testing.T) {
	in := sequence("MRI1", 41)
	out := InsertMaintenance(in, DefaultMaintenance)
	require.Len(t, out, 43)

	var blocks []model.ScheduleEntry
	for _, e := range out {
		if e.IsMaintenance() {
			blocks = append(blocks, e)
		}
	}
	require.Len(t, blocks, 2)
	ids := byID(in)
	assert.Equal(t, ids["s20"].End, blocks[0].Start)
	assert.Equal(t, ids["s40"].End, blocks[1].Start)
	for _, b := range blocks {
		assert.Equal(t, 60, b.Duration)
		assert.Equal(t, 60*time.Minute, b.End.Sub(b.Start))
		assert.Equal(t, model.MaintenancePatient, b.PatientID)
		assert.Equal(t, model.PriorityImmediate, b.Priority)
	}
	assert.Equal(t, "maintenance_MRI1_20", blocks[0].ScanID)
	assert.Equal(t, "maintenance_MRI1_40", blocks[1].ScanID)
}

func TestInsertMaintenance_PerMachineAndExistingBlocksNotCounted(t *testing.T) {
	in := append(sequence("A", 3), sequence("B", 2)...)
	in = append(in, model.ScheduleEntry{
		ScanID: "old", ScanType: model.MaintenanceType, Machine: "A",
		Start: at(7, 20), End: at(7, 25), Duration: 5,
	})
	out := InsertMaintenance(in, MaintenanceOptions{Every: 2, Duration: 30 * time.Minute})

	var names []string
	for _, e := range out {
		if e.IsMaintenance() && e.ScanID != "old" {
			names = append(names, e.ScanID)
		}
	}
	assert.ElementsMatch(t, []string{"maintenance_A_2", "maintenance_B_2"}, names)
}

func TestInsertMaintenance_Disabled(t *testing.T) {
	out := InsertMaintenance(sequence("A", 30), MaintenanceOptions{})
	assert.Len(t, out, 30)
}

func TestStripMaintenance(t *testing.T) {
	in := InsertMaintenance(sequence("A", 20), DefaultMaintenance)
	require.Len(t, in, 21)
	assert.Len(t, StripMaintenance(in), 20)
}

func TestFindOverlaps(t *testing.T) {
	in := []model.ScheduleEntry{
		entry("a", "M", at(9, 0), 60, 3),
		entry("b", "M", at(9, 30), 10, 3),
		entry("c", "M", at(9, 50), 20, 3),
		entry("d", "M", at(10, 10), 10, 3),
		entry("e", "N", at(9, 0), 60, 3),
	}
	got := FindOverlaps(in)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].First.ScanID)
	assert.Equal(t, "b", got[0].Second.ScanID)
	assert.Equal(t, "c", got[1].Second.ScanID)
	assert.Contains(t, got[0].String(), "overlap on M")
}

func TestValidate(t *testing.T) {
	maint := model.ScheduleEntry{
		ScanID: "maintenance_M_20", ScanType: model.MaintenanceType, Machine: "M",
		Start: at(9, 0), End: at(10, 0), Duration: 60,
	}
	locked := entry("L", "M", at(9, 30), 30, 2)
	fresh := entry("F", "N", at(9, 0), 30, 2)
	old1 := entry("O1", "N", at(9, 20), 30, 2)
	old2 := entry("O2", "K", at(9, 0), 30, 2)
	old3 := entry("O3", "K", at(9, 10), 30, 2)

	t.Run("fresh overlap aborts", func(t *testing.T) {
		_, err := Validate([]model.ScheduleEntry{fresh, old1}, Scope{Fresh: map[string]bool{"F": true}}, CollisionAbort)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvariant))
	})
	t.Run("pre-existing overlap warns", func(t *testing.T) {
		warns, err := Validate([]model.ScheduleEntry{old2, old3}, Scope{}, CollisionAbort)
		require.NoError(t, err)
		assert.Len(t, warns, 1)
	})
	t.Run("maintenance on locked aborts", func(t *testing.T) {
		_, err := Validate([]model.ScheduleEntry{maint, locked}, Scope{Locked: map[string]bool{"L": true}}, CollisionAbort)
		assert.ErrorIs(t, err, ErrInvariant)
	})
	t.Run("maintenance on locked warns when configured", func(t *testing.T) {
		warns, err := Validate([]model.ScheduleEntry{maint, locked}, Scope{Locked: map[string]bool{"L": true}}, CollisionWarn)
		require.NoError(t, err)
		assert.Len(t, warns, 1)
	})
	t.Run("maintenance on open entry warns", func(t *testing.T) {
		warns, err := Validate([]model.ScheduleEntry{maint, locked}, Scope{}, CollisionAbort)
		require.NoError(t, err)
		assert.Len(t, warns, 1)
	})
}
