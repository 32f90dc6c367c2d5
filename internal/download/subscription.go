package download

import (
	"sync"
	"sync/atomic"
)

const subscriptionBuffer = 64

// Subscription is the channel form of OnUpdate. Events are buffered; when a
// reader falls too far behind, further events are dropped and counted
// rather than stalling delivery to other listeners.
type Subscription struct {
	ch          chan Event
	unsubscribe func()
	dropped     atomic.Int64

	mu     sync.Mutex
	closed bool
}

func newSubscription(d *dispatcher, taskID string) *Subscription {
	s := &Subscription{ch: make(chan Event, subscriptionBuffer)}
	s.unsubscribe = d.subscribe(taskID, s.push)
	return s
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Channel returns a channel that receives task events
func (s *Subscription) Channel() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close closes the subscription
func (s *Subscription) Close() error {
	s.unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
