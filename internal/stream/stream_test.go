package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)
	s.Publish(PaymentEvent{PaymentID: "p1", InvoiceID: "inv", Amount: 500})

	for _, ch := range []<-chan PaymentEvent{a, b} {
		select {
		case evt := <-ch:
			if evt.PaymentID != "p1" || evt.Timestamp.IsZero() {
				t.Fatalf("unexpected event: %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	if n := s.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	for i := 0; i < 64; i++ {
		s.Publish(PaymentEvent{PaymentID: "p"})
	}
	if got := len(ch); got != cap(ch) {
		t.Fatalf("expected buffer full at %d, got %d", cap(ch), got)
	}
}
