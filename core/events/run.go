package events

import "time"

// RunEvent is published when a scheduling run ends.
type RunEvent struct {
	RunID     string
	Facility  string
	Status    string
	Scheduled int
	Deferred  int
	Err       error
	Elapsed   time.Duration
}

// BatchEvent is published when the watch service moves a batch file.
// Dest is empty when the file could not be moved.
type BatchEvent struct {
	Path string
	Dest string
	Err  error
}
