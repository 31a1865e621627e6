package mqtt

import (
	"context"

	"github.com/kilianp07/scanplan/core/events"
)

// Publisher pushes scheduling outcomes to downstream consumers such as
// ward displays or the request-handling layer.
type Publisher interface {
	// PublishSchedule publishes the canonical schedule of a facility. The
	// message is retained so late subscribers receive the current state.
	PublishSchedule(ctx context.Context, ev events.ScheduleEvent) error

	// PublishRun publishes the outcome of a run.
	PublishRun(ctx context.Context, ev events.RunEvent) error
}
