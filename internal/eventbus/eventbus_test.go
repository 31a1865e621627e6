package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/scanplan/core/events"
)

func TestBus_FanOut(t *testing.T) {
	bus := New()
	a, b := bus.Subscribe(), bus.Subscribe()
	bus.Publish(events.RunEvent{RunID: "r1", Status: "ok"})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		run, ok := ev.(events.RunEvent)
		require.True(t, ok)
		assert.Equal(t, "r1", run.RunID)
	}
	assert.Zero(t, bus.Dropped())
}

func TestBus_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := New(WithBuffer(2))
	ch := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(events.BatchEvent{Path: "batch.csv"})
	}
	assert.Len(t, ch, 2)
	assert.Equal(t, uint64(3), bus.Dropped())
}

func TestBus_CloseDrainsThenCloses(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish(events.RunEvent{RunID: "last"})
	bus.Close()
	bus.Publish(events.RunEvent{RunID: "ignored"})

	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "last", ev.(events.RunEvent).RunID)
	_, ok = <-ch
	assert.False(t, ok)

	_, ok = <-bus.Subscribe()
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestBus_UnsubscribeAfterCloseIsSafe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
	assert.NotPanics(t, bus.Close)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
	bus.Publish(events.RunEvent{})
	assert.Zero(t, bus.Dropped())
}
