// Package broadcast provides an in-process publish/subscribe hub used to fan
// out live events to subscription listeners.
package broadcast

import (
	"sync"
)

// DefaultBuffer is the per-listener queue length used by Subscribe.
const DefaultBuffer = 64

// Listener is one registered subscriber. Events arrive on C in publish order
// until the listener is unsubscribed or the broker is closed, at which point
// C is closed.
type Listener[T any] struct {
	C <-chan T

	ch chan T
	id uint64
}

// Broker delivers published events to every listener registered at the time
// of publishing. Delivery is best effort: an event is dropped for a listener
// whose queue is full.
type Broker[T any] struct {
	mu        sync.RWMutex
	listeners map[uint64]*Listener[T]
	nextID    uint64
	buffer    int
	closed    bool

	// OnDrop, when set, is called for every event dropped for a slow listener.
	OnDrop func()
}

// NewBroker creates a broker whose listeners queue up to buffer events.
// A non-positive buffer selects DefaultBuffer.
func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker[T]{
		listeners: make(map[uint64]*Listener[T]),
		buffer:    buffer,
	}
}

// Subscribe registers a new listener. It receives only events published
// after this call returns. Subscribing to a closed broker yields a listener
// whose channel is already closed.
func (b *Broker[T]) Subscribe() *Listener[T] {
	ch := make(chan T, b.buffer)
	l := &Listener[T]{C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return l
	}
	b.nextID++
	l.id = b.nextID
	b.listeners[l.id] = l
	return l
}

// Unsubscribe removes the listener and closes its channel. It is safe to call
// more than once and concurrently with Publish.
func (b *Broker[T]) Unsubscribe(l *Listener[T]) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l.id]; !ok {
		return
	}
	delete(b.listeners, l.id)
	close(l.ch)
}

// Publish enqueues event for every registered listener and returns the
// number of listeners it was delivered to. It never blocks.
func (b *Broker[T]) Publish(event T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, l := range b.listeners {
		select {
		case l.ch <- event:
			delivered++
		default:
			if b.OnDrop != nil {
				b.OnDrop()
			}
		}
	}
	return delivered
}

// Len returns the number of registered listeners.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close unregisters every listener. Later subscriptions are closed
// immediately and publishes reach nobody.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, l := range b.listeners {
		delete(b.listeners, id)
		close(l.ch)
	}
}
