package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscriber receives Events matching its Filter. OnEvent must not block
// meaningfully - the Bus runs one delivery goroutine per subscriber, calling
// OnEvent once per event in the order Publish was called, mirroring
// ObserverManager.Notify's "non-blocking, panics recovered and logged"
// contract while additionally guaranteeing per-subscriber delivery order.
type Subscriber interface {
	Name() string
	Filter() Filter
	OnEvent(e Event)
}

// Bus is the C10 process-wide typed pub/sub. Per-workflow_id sequence
// counters give every event a monotonic Sequence, and a dedicated queue per
// subscriber preserves that sequence on delivery, satisfying spec.md §5's
// "totally ordered per workflow_id, NodeStarted before NodeCompleted|Failed"
// testable property regardless of which goroutine produced an event.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriberQueue
	sequences   sync.Map // workflow_id -> *int64
	logger      *slog.Logger
}

// subscriberQueue pairs a Subscriber with the ordered queue its dedicated
// drain goroutine consumes - one goroutine per subscriber, not one per
// event, so delivery order matches enqueue (= Publish) order.
type subscriberQueue struct {
	sub   Subscriber
	queue chan Event
	stop  chan struct{}
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a Subscriber and starts its drain goroutine.
// Duplicate names are rejected.
func (b *Bus) Subscribe(sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.subscribers {
		if existing.sub.Name() == sub.Name() {
			return &duplicateSubscriberError{name: sub.Name()}
		}
	}
	q := &subscriberQueue{sub: sub, queue: make(chan Event, 256), stop: make(chan struct{})}
	b.subscribers = append(b.subscribers, q)
	go b.drain(q)
	return nil
}

// Unsubscribe removes a Subscriber by name and stops its drain goroutine.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, q := range b.subscribers {
		if q.sub.Name() == name {
			close(q.stop)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// NextSequence allocates the next monotonic sequence number for workflowID.
func (b *Bus) NextSequence(workflowID string) int64 {
	counter, _ := b.sequences.LoadOrStore(workflowID, new(int64))
	return atomic.AddInt64(counter.(*int64), 1)
}

// Publish stamps e.Sequence (if unset) and enqueues it onto every
// subscriber's queue in that order, so each subscriber's drain goroutine
// delivers in the same order events were published.
func (b *Bus) Publish(e Event) {
	if e.Sequence == 0 {
		e.Sequence = b.NextSequence(e.WorkflowID)
	}

	b.mu.RLock()
	queues := make([]*subscriberQueue, len(b.subscribers))
	copy(queues, b.subscribers)
	b.mu.RUnlock()

	for _, q := range queues {
		select {
		case q.queue <- e:
		case <-q.stop:
		}
	}
}

// drain is a subscriber's dedicated delivery goroutine: one per subscriber,
// consuming its queue in FIFO order, so no scheduler reordering between
// subscribers can reach any single subscriber's OnEvent calls.
func (b *Bus) drain(q *subscriberQueue) {
	for {
		select {
		case e := <-q.queue:
			b.deliver(q.sub, e)
		case <-q.stop:
			return
		}
	}
}

func (b *Bus) deliver(sub Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "subscriber", sub.Name(), "event_type", e.Type, "panic", r)
		}
	}()
	if f := sub.Filter(); f != nil && !f.ShouldNotify(e) {
		return
	}
	sub.OnEvent(e)
}

type duplicateSubscriberError struct{ name string }

func (e *duplicateSubscriberError) Error() string {
	return "events: subscriber " + e.name + " already registered"
}
