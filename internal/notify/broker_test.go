// Package notify tests for the broadcast broker.
package notify

import (
	"testing"
)

// TestPublishReachesAllSubscribers verifies fan-out to multiple
// observers.
func TestPublishReachesAllSubscribers(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	first := broker.Subscribe(1)
	second := broker.Subscribe(1)
	defer first.Close()
	defer second.Close()

	broker.Publish(SignalSyncStarted)

	for i, sub := range []*Subscription{first, second} {
		select {
		case sig := <-sub.C:
			if sig != SignalSyncStarted {
				t.Errorf("Subscriber %d: expected sync-started, got %s", i, sig)
			}
		default:
			t.Errorf("Subscriber %d: expected a signal", i)
		}
	}
}

// TestClosedSubscriptionStopsReceiving verifies unsubscription.
func TestClosedSubscriptionStopsReceiving(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	sub := broker.Subscribe(1)
	sub.Close()

	// Publish after close must not panic and must not deliver.
	broker.Publish(SignalQueueChanged)

	if _, ok := <-sub.C; ok {
		t.Error("Expected closed channel after unsubscribe")
	}
}

// TestPublishNeverBlocks verifies a full subscriber buffer drops the
// signal instead of stalling the publisher.
func TestPublishNeverBlocks(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	sub := broker.Subscribe(1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			broker.Publish(SignalQueueChanged)
		}
		close(done)
	}()

	<-done

	// The idle subscriber holds exactly its buffered signal.
	select {
	case sig := <-sub.C:
		if sig != SignalQueueChanged {
			t.Errorf("Expected queue-changed, got %s", sig)
		}
	default:
		t.Error("Expected one buffered signal")
	}
}

// TestCloseIsIdempotent verifies double close and publish-after-close
// are safe.
func TestCloseIsIdempotent(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe(1)

	broker.Close()
	broker.Close()
	broker.Publish(SignalSyncFinished)
	sub.Close()
}
