package mqtt

import (
	"context"
	"sync"

	"github.com/kilianp07/scanplan/core/events"
	"github.com/kilianp07/scanplan/core/logger"
	"github.com/kilianp07/scanplan/internal/eventbus"
)

// Forward subscribes to the bus and publishes every schedule and run event.
// Publish failures are logged; the returned WaitGroup completes once the
// context is canceled or the bus is closed.
func Forward(ctx context.Context, bus eventbus.EventBus, pub Publisher, log logger.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	if bus == nil || pub == nil {
		return &wg
	}
	sub := bus.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				var err error
				switch e := ev.(type) {
				case events.ScheduleEvent:
					err = pub.PublishSchedule(ctx, e)
				case events.RunEvent:
					err = pub.PublishRun(ctx, e)
				default:
					continue
				}
				if err != nil {
					log.Errorf("mqtt forward: %v", err)
				}
			}
		}
	}()
	return &wg
}
