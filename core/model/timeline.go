package model

import "time"

// MinutesPerDay is the length of a calendar day in minutes.
const MinutesPerDay = 1440

// Timeline converts calendar instants to integer minute offsets relative to a
// per-run reference instant.
type Timeline struct {
	Ref time.Time
}

// NewTimeline returns a timeline anchored at the minute of the earliest
// check-in of reqs. An empty batch anchors at fallback.
func NewTimeline(reqs []ScanRequest, fallback time.Time) Timeline {
	if len(reqs) == 0 {
		return Timeline{Ref: fallback.Truncate(time.Minute)}
	}
	ref := reqs[0].CheckIn
	for _, r := range reqs[1:] {
		if r.CheckIn.Before(ref) {
			ref = r.CheckIn
		}
	}
	return Timeline{Ref: ref.Truncate(time.Minute)}
}

// Offset returns the whole minutes from the reference to t, rounded down.
func (tl Timeline) Offset(t time.Time) int64 {
	d := t.Sub(tl.Ref)
	m := int64(d / time.Minute)
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return m
}

// OffsetCeil returns the whole minutes from the reference to t, rounded up,
// so that At(OffsetCeil(t)) is never before t.
func (tl Timeline) OffsetCeil(t time.Time) int64 {
	m := tl.Offset(t)
	if tl.At(m).Before(t) {
		m++
	}
	return m
}

// At returns the instant off minutes after the reference.
func (tl Timeline) At(off int64) time.Time {
	return tl.Ref.Add(time.Duration(off) * time.Minute)
}

// ClockMinute is the wall-clock minute of day of the reference instant.
func (tl Timeline) ClockMinute() int64 {
	return int64(tl.Ref.Hour()*60 + tl.Ref.Minute())
}
