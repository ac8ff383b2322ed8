/*
bus.go - Completion event bus

PURPOSE:
  Broadcasts a timestamped "scan completed" signal to any number of live
  listeners. Fire-and-forget: no delivery guarantee, no backlog, no
  ordering across subscribers. A subscriber connecting after an event
  missed it permanently.

DELIVERY:
  Each subscriber owns a buffered channel. Publish performs a
  non-blocking send per subscriber; a full buffer drops that delivery
  for that subscriber without blocking or retrying.

SEE ALSO:
  - engine.go:  Publishes on completion transitions
  - api/sse.go: Bridges subscriptions onto Server-Sent Events
*/
package reconcile

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBuffer = 16

// Bus is an explicit subscriber registry. Inject it where completion
// signals are needed; substituting a fake listener makes it trivially
// testable.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan time.Time
	seq  atomic.Int64
}

// Subscription is one live listener. Receive completion timestamps
// from C until Unsubscribe closes it.
type Subscription struct {
	ID string
	C  <-chan time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan time.Time)}
}

// Subscribe registers a new listener. O(1).
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan time.Time, subscriberBuffer)
	id := fmt.Sprintf("sub-%d", b.seq.Add(1))

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return &Subscription{ID: id, C: ch}
}

// Unsubscribe removes a listener and closes its channel. O(1).
// Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish delivers a completion timestamp to every current subscriber.
// Never blocks; a subscriber whose buffer is full misses this delivery.
func (b *Bus) Publish(ts time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ts:
		default:
		}
	}
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
