package emit

import (
	"reflect"
	"sync"
)

// subscription drains one handler's events in the order they were
// published, on its own goroutine, so one slow or misbehaving handler
// cannot reorder or stall another. The queue is unbounded: the bus makes
// no backpressure or batching guarantees, matching the event-bus
// contract.
type subscription struct {
	handler Handler

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

func newSubscription(h Handler) *subscription {
	s := &subscription{handler: h}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *subscription) push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *subscription) loop() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.invoke(e)
	}
}

func (s *subscription) invoke(e Event) {
	defer func() { _ = recover() }()
	s.handler(e)
}

// Bus is a minimal pub/sub primitive: Subscribe registers a Handler,
// Unsubscribe removes it, and Publish delivers an event to every
// currently-registered handler. Handlers are dispatched in registration
// order, but each dispatch is asynchronous so no handler's latency or
// panic can block another.
type Bus struct {
	mu   sync.Mutex
	subs []*subscription
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h to receive every subsequent Publish call, in the
// order events are published.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, newSubscription(h))
}

// Unsubscribe removes the first registration matching h by function
// identity (reflect.Value.Pointer comparison, the standard Go idiom for
// treating func values as comparable). It is a no-op if h was never
// subscribed.
func (b *Bus) Unsubscribe(h Handler) {
	target := reflect.ValueOf(h).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if reflect.ValueOf(s.handler).Pointer() == target {
			s.stop()
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every handler registered at the time of the
// call. Registration order is preserved in the order deliveries are
// queued; it is not a guarantee about completion order.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.push(e)
	}
}

// Close stops every subscription's delivery goroutine. Intended for use
// once a Bus is no longer needed (for example in tests), not as part of
// normal workflow execution.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.stop()
	}
	b.subs = nil
}
