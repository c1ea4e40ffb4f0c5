package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/flowcore/internal/events"
)

type recordingSubscriber struct {
	name string
	mu   sync.Mutex
	seen []int64
}

func (r *recordingSubscriber) Name() string          { return r.name }
func (r *recordingSubscriber) Filter() events.Filter { return nil }
func (r *recordingSubscriber) OnEvent(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e.Sequence)
}

func (r *recordingSubscriber) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.seen))
	copy(out, r.seen)
	return out
}

// TestBusDeliversInPublishOrder guards against the per-event-goroutine
// fan-out that used to let NodeCompleted race ahead of NodeStarted for the
// same subscriber: every event published for one workflow_id must reach a
// given subscriber in the order it was published, per spec.md §5's total
// ordering guarantee.
func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := events.NewBus(nil)
	sub := &recordingSubscriber{name: "rec"}
	require.NoError(t, bus.Subscribe(sub))

	const n = 200
	for i := 0; i < n; i++ {
		bus.Publish(events.Event{Type: events.TypeNodeStarted, WorkflowID: "wf1"})
	}

	require.Eventually(t, func() bool { return len(sub.snapshot()) == n }, time.Second, time.Millisecond)

	seen := sub.snapshot()
	for i, seq := range seen {
		assert.EqualValues(t, i+1, seq, "event %d delivered out of publish order", i)
	}
}

func TestBusRejectsDuplicateSubscriberName(t *testing.T) {
	bus := events.NewBus(nil)
	require.NoError(t, bus.Subscribe(&recordingSubscriber{name: "dup"}))
	err := bus.Subscribe(&recordingSubscriber{name: "dup"})
	require.Error(t, err)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewBus(nil)
	sub := &recordingSubscriber{name: "rec"}
	require.NoError(t, bus.Subscribe(sub))
	bus.Publish(events.Event{Type: events.TypeNodeStarted, WorkflowID: "wf1"})
	require.Eventually(t, func() bool { return len(sub.snapshot()) == 1 }, time.Second, time.Millisecond)

	bus.Unsubscribe("rec")
	bus.Publish(events.Event{Type: events.TypeNodeCompleted, WorkflowID: "wf1"})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sub.snapshot(), 1)
}
