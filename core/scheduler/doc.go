// Package scheduler runs the scheduling cycle of a facility. A run loads the
// persisted schedule, splits it at the lock window, plans the admitted
// requests around the bookings that stay, then applies the immediate bump
// cascade and maintenance insertion before the new schedule is validated and
// written back as a whole. Nothing is written when any step fails.
//
// Runs on one Scheduler never interleave. Every run, failed or not, is
// reported to the metrics sink, the run history and the event bus.
package scheduler
