package relay

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"signalRelay/internal/domain"
	"signalRelay/internal/metrics"
)

// DefaultQueueSize is the per-subscriber buffer when none is configured.
const DefaultQueueSize = 64

// Subscription is one consumer's handle on the hub. Events arrive on C in
// publication order; when the queue is full the oldest pending event is
// evicted. Done is closed once the subscription is removed or the hub stops.
// C itself is never closed.
type Subscription struct {
	ID string

	queue     chan domain.DerivedEvent
	done      chan struct{}
	closeOnce sync.Once
	removed   atomic.Bool
	dropped   atomic.Uint64
}

func newSubscription(size int) *Subscription {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Subscription{
		ID:    uuid.NewString(),
		queue: make(chan domain.DerivedEvent, size),
		done:  make(chan struct{}),
	}
}

// C returns the receive side of the subscriber queue.
func (s *Subscription) C() <-chan domain.DerivedEvent {
	return s.queue
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped counts events evicted because the consumer fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		s.removed.Store(true)
		close(s.done)
	})
}

// offer queues ev without blocking, evicting the oldest event when full.
// Only the hub's fan-out goroutine calls offer, so the retry terminates: the
// consumer can only make room, never take it away.
func (s *Subscription) offer(ev domain.DerivedEvent) {
	if s.removed.Load() {
		return
	}
	for {
		select {
		case s.queue <- ev:
			metrics.EventsDeliveredTotal.Inc()
			return
		default:
		}
		select {
		case <-s.queue:
			s.dropped.Add(1)
			metrics.EventsDroppedTotal.Inc()
		default:
		}
	}
}
