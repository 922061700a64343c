package stream

import (
	"context"
	"testing"
	"time"

	"neplus.org/internal/audit"
)

func TestFanOutToAllSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := s.Subscribe(ctx)
	ch2 := s.Subscribe(ctx)

	ev := audit.Event{ID: "ev-1", Type: audit.TypeRoleChange, Severity: audit.SeverityHigh}
	if err := s.Notify(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	for i, ch := range []<-chan audit.Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.ID != "ev-1" {
				t.Fatalf("subscriber %d: unexpected event %s", i, got.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the alert", i)
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = s.Notify(context.Background(), audit.Event{ID: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a slow subscriber")
	}
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Subscribe(ctx)
	if s.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", s.SubscriberCount())
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was never removed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, open := <-ch; open {
		t.Fatal("channel must be closed after unsubscribe")
	}
}
