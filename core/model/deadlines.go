package model

import "fmt"

// Deadlines holds, for priorities 1 to 5, the maximum minutes between
// check-in and scan start. Priority 0 is bounded by the run horizon only.
type Deadlines [5]int64

// DefaultDeadlines is one day, one week, 30 days, 60 days and 240 days.
var DefaultDeadlines = Deadlines{1440, 10080, 43200, 86400, 345600}

// For returns the deadline of priority p, or horizon for priority 0.
func (d Deadlines) For(p int, horizon int64) int64 {
	if p < 1 || p > len(d) {
		return horizon
	}
	return d[p-1]
}

// Validate checks that every deadline is positive.
func (d Deadlines) Validate() error {
	for i, v := range d {
		if v <= 0 {
			return fmt.Errorf("deadline for priority %d must be positive", i+1)
		}
	}
	return nil
}
