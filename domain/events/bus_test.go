package events

import (
	"context"
	"testing"
	"time"
)

func TestBus_PublishNoSubscribers(t *testing.T) {
	b := New(4)
	err := b.Publish(New(ConversationCreated, "c1", "u1", time.Now()))
	if err != ErrNoSubscribers {
		t.Fatalf("expected ErrNoSubscribers, got %v", err)
	}
}

func TestBus_FIFOPerSubscriber(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 3; i++ {
		if err := b.Publish(New(ConversationCreated, "c1", "u1", time.Now())); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		ev, err := sub.Recv(ctx)
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if ev.ConversationID != "c1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
}

func TestBus_SlowSubscriberLags(t *testing.T) {
	b := New(2)
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		_ = b.Publish(New(ConversationCreated, "c1", "u1", time.Now()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := sub.Recv(ctx)
	lagged, ok := err.(*LaggedError)
	if !ok {
		t.Fatalf("expected LaggedError, got %v", err)
	}
	if lagged.N != 3 {
		t.Fatalf("expected 3 dropped events, got %d", lagged.N)
	}

	// After the lag is reported, the remaining buffered events are
	// still delivered in order.
	for i := 0; i < 2; i++ {
		if _, err := sub.Recv(ctx); err != nil {
			t.Fatalf("recv after lag %d: %v", i, err)
		}
	}
}

func TestBus_IndependentSubscribersDoNotBlockEachOther(t *testing.T) {
	b := New(4)
	fast := b.Subscribe()
	defer fast.Close()
	slow := b.Subscribe()
	defer slow.Close()

	_ = b.Publish(New(ConversationCreated, "c1", "u1", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := fast.Recv(ctx); err != nil {
		t.Fatalf("fast subscriber recv: %v", err)
	}
	// slow never reads; publishing more must not block.
	for i := 0; i < 10; i++ {
		if err := b.Publish(New(ConversationCreated, "c1", "u1", time.Now())); err != nil {
			t.Fatalf("publish should not error with a live subscriber: %v", err)
		}
	}
}

func TestBus_CloseWakesBlockedReceiver(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := sub.Recv(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake after Close")
	}
}
