package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(zap.NewNop(), Config{Workers: 1, QueueSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})

	b.Subscribe(EventDecision, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		close(done)
	})

	b.Publish(EventDecision, map[string]string{"asset": "SPX"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Type != EventDecision {
		t.Errorf("expected one delivered EventDecision, got %+v", got)
	}
}

func TestPublishUnsubscribedTypeIsNoop(t *testing.T) {
	b := New(zap.NewNop(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	b.Publish(EventPromotion, nil)
	time.Sleep(50 * time.Millisecond)

	stats := b.Stats()
	if stats.Published != 1 {
		t.Errorf("expected 1 published event, got %d", stats.Published)
	}
	if stats.Delivered != 0 {
		t.Errorf("expected 0 delivered events with no subscriber, got %d", stats.Delivered)
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	b := New(zap.NewNop(), Config{Workers: 1, QueueSize: 1})
	// Do not Start the bus so nothing drains the queue.
	b.Publish(EventDecision, nil)
	b.Publish(EventDecision, nil)

	stats := b.Stats()
	if stats.Dropped == 0 {
		t.Errorf("expected at least one dropped event when queue is full and undrained, got stats=%+v", stats)
	}
}

func TestHandlerPanicDoesNotCrashWorker(t *testing.T) {
	b := New(zap.NewNop(), Config{Workers: 1, QueueSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	done := make(chan struct{})
	b.Subscribe(EventGuardEscalation, func(e Event) { panic("boom") })
	b.Subscribe(EventDecision, func(e Event) { close(done) })

	b.Publish(EventGuardEscalation, nil)
	b.Publish(EventDecision, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the worker to survive a handler panic and keep processing events")
	}
}
