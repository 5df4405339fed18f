// Package eventbus provides the regime-change/guard-escalation/promotion
// event fanout used by the HTTP layer's websocket push. It is
// adapted from a channel-worker pub/sub shape: a bounded event channel
// drained by a small worker pool, with per-type subscriber lists guarded by
// a RWMutex.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType names one of the domain events the bus carries.
type EventType string

const (
	EventRegimeChange    EventType = "regime-change"
	EventGuardEscalation EventType = "guard-escalation"
	EventPromotion       EventType = "promotion"
	EventDecision        EventType = "decision"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Handler processes one event. Handlers run on a worker goroutine and must
// not block indefinitely.
type Handler func(Event)

// Config controls the bus's worker count and queue depth.
type Config struct {
	Workers   int
	QueueSize int
}

func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256}
}

// Bus fans out published events to their type's subscribers.
type Bus struct {
	logger *zap.Logger
	cfg    Config

	mu   sync.RWMutex
	subs map[EventType][]Handler

	queue   chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	started bool

	published atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
}

func New(logger *zap.Logger, cfg Config) *Bus {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Bus{
		logger: logger.Named("eventbus"),
		cfg:    cfg,
		subs:   make(map[EventType][]Handler),
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the worker pool. Safe to call once.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}
}

func (b *Bus) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case evt := <-b.queue:
			b.dispatch(evt)
		}
	}
}

func (b *Bus) dispatch(evt Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[evt.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", zap.Any("recover", r), zap.String("eventType", string(evt.Type)))
				}
			}()
			h(evt)
			b.delivered.Add(1)
		}()
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// Publish enqueues an event, non-blocking. If the queue is full the event
// is dropped and counted, never blocking the publisher.
func (b *Bus) Publish(t EventType, payload interface{}) {
	evt := Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
	b.published.Add(1)
	select {
	case b.queue <- evt:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped, queue full", zap.String("eventType", string(t)))
	}
}

// Stats is a snapshot of bus activity counters.
type Stats struct {
	Published int64
	Delivered int64
	Dropped   int64
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Stop signals workers to exit and waits for them to drain.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
}
