package stream

import (
	"context"
	"testing"
	"time"

	"foodbridge.org/internal/market"
)

func TestNotifyPublishesPublicEvents(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	err := s.Notify(ctx, market.Notification{
		Kind:   market.NotifyDonationPosted,
		To:     []string{"ngo@example.com"},
		Fields: map[string]string{"donation_id": "d1", "food_name": "Rice", "location": "Market"},
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		if evt.Kind != "donation_posted" || evt.DonationID != "d1" || evt.FoodName != "Rice" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	_ = s.Notify(ctx, market.Notification{Kind: market.NotifyUserRegistered, Fields: map[string]string{"name": "x"}})
	select {
	case evt := <-ch:
		t.Fatalf("private event leaked: %+v", evt)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(FeedEvent{Kind: "donation_posted"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	if s.Subscribers() != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
