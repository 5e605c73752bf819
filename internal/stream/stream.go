package stream

import (
	"context"
	"sync"
	"time"

	"foodbridge.org/internal/market"
)

// FeedEvent is a public marketplace event pushed to live-feed subscribers.
// It never carries contact details.
type FeedEvent struct {
	Kind       string    `json:"kind"`
	DonationID string    `json:"donation_id"`
	FoodName   string    `json:"food_name"`
	Quantity   string    `json:"quantity,omitempty"`
	Location   string    `json:"location,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream fan-outs feed events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan FeedEvent
	next int
	now  func() time.Time
}

var _ market.Notifier = (*Stream)(nil)

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan FeedEvent),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan FeedEvent {
	ch := make(chan FeedEvent, 16)

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

// Subscribers reports the number of connected clients.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt FeedEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Notify turns public lifecycle notifications into feed events; other kinds
// are ignored.
func (s *Stream) Notify(_ context.Context, n market.Notification) error {
	switch n.Kind {
	case market.NotifyDonationPosted, market.NotifyRequestCompleted:
	default:
		return nil
	}
	s.Publish(FeedEvent{
		Kind:       string(n.Kind),
		DonationID: n.Fields["donation_id"],
		FoodName:   n.Fields["food_name"],
		Quantity:   n.Fields["quantity"],
		Location:   n.Fields["location"],
		Timestamp:  s.now().UTC(),
	})
	return nil
}
