// Package events defines the scheduling events emitted on the event bus.
//
// Available event types:
//   - ScheduleEvent: a run persisted a new canonical schedule
//   - RunEvent: a run finished, successfully or not
//   - BatchEvent: the watch service consumed a batch file
package events
