package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/scanplan/core/events"
	coremqtt "github.com/kilianp07/scanplan/core/mqtt"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher records published events. It is used in tests and when no
// broker is configured.
type MockPublisher struct {
	Schedules []events.ScheduleEvent
	Runs      []events.RunEvent
	// Fail makes every publish return an error.
	Fail bool
	mu   sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishSchedule records the event or returns an error if configured to fail.
func (m *MockPublisher) PublishSchedule(_ context.Context, ev events.ScheduleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Schedules = append(m.Schedules, ev)
	return nil
}

// PublishRun records the event or returns an error if configured to fail.
func (m *MockPublisher) PublishRun(_ context.Context, ev events.RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Runs = append(m.Runs, ev)
	return nil
}

// Counts returns the number of recorded schedules and runs.
func (m *MockPublisher) Counts() (schedules, runs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Schedules), len(m.Runs)
}
