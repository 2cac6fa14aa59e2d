// Package notify provides the broadcast channel carrying queue and sync
// signals to any number of observers.
package notify

import (
	"sync"

	"github.com/kimhsiao/inventorylite/internal/logging"
)

// Signal identifies a broadcast event. Signals carry no payload;
// observers re-query the queue for current state.
type Signal string

const (
	SignalQueueChanged Signal = "queue-changed"
	SignalSyncStarted  Signal = "sync-started"
	SignalSyncFinished Signal = "sync-finished"
)

// Subscription is a registered observer. Signals arrive on C until
// Close is called.
type Subscription struct {
	C <-chan Signal

	id     int
	ch     chan Signal
	broker *Broker
	once   sync.Once
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s.id)
	})
}

// Broker fans signals out to all current subscribers. Delivery is
// non-blocking: a subscriber whose buffer is full misses the signal,
// which is acceptable because observers only re-read state.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Signal
	nextID int
	closed bool
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[int]chan Signal),
	}
}

// Subscribe registers an observer. buffer is the channel capacity; a
// buffer of at least 1 is enforced so a lone signal is never dropped on
// an idle subscriber.
func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Signal, buffer)
	id := b.nextID
	b.nextID++

	if b.closed {
		close(ch)
	} else {
		b.subs[id] = ch
	}

	return &Subscription{C: ch, id: id, ch: ch, broker: b}
}

// Publish broadcasts a signal to all subscribers without blocking.
func (b *Broker) Publish(sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, ch := range b.subs {
		select {
		case ch <- sig:
		default:
			logging.Debug("Subscriber buffer full, dropping signal",
				map[string]interface{}{"subscriber": id, "signal": string(sig)})
		}
	}
}

// Close shuts the broker down and closes all subscriber channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Broker) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}
