package stream

import (
	"context"
	"sync"

	"neplus.org/internal/audit"
)

// Alerts fans high-severity audit events out to all active subscribers
// (SSE clients, monitoring relays). It implements audit.Notifier.
type Alerts struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Event
	next int
}

// New initialises an empty alert stream.
func New() *Alerts {
	return &Alerts{subs: make(map[int]chan audit.Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive alerts. The channel is closed when the provided context ends.
func (s *Alerts) Subscribe(ctx context.Context) <-chan audit.Event {
	ch := make(chan audit.Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Notify fan-outs the event to all subscribers. It never blocks and never
// fails: delivery to monitoring is best-effort.
func (s *Alerts) Notify(_ context.Context, ev audit.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	return nil
}

// SubscriberCount reports the number of active subscribers.
func (s *Alerts) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
