package events

import (
	"context"
	"time"

	"github.com/oshokin/security-zone/internal/logger"
)

const (
	// DefaultBuffer is the queue length of asynchronous sinks.
	DefaultBuffer = 256

	// drainTimeout bounds the delivery of queued events on shutdown.
	drainTimeout = 5 * time.Second
)

// Handler processes one event and may block or fail.
type Handler interface {
	Process(ctx context.Context, event Event) error
}

// Async delivers events to a blocking Handler from its own goroutine.
// Events are dropped, with a warning, while the queue is full.
type Async struct {
	// name identifies the sink in logs.
	name string
	// handler processes queued events.
	handler Handler
	// queue holds events waiting for the handler.
	queue chan Event
}

// NewAsync wraps handler with a queue of the given size.
func NewAsync(name string, handler Handler, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Async{
		name:    name,
		handler: handler,
		queue:   make(chan Event, buffer),
	}
}

// Handle queues the event without blocking.
func (a *Async) Handle(ctx context.Context, event Event) {
	select {
	case a.queue <- event:
	default:
		logger.WarnKV(ctx, "Event sink queue is full, dropping event", "sink", a.name, "event_id", event.ID)
	}
}

// Run processes queued events until ctx is canceled, then delivers what is
// still queued within a short grace period.
func (a *Async) Run(ctx context.Context) {
	ctx = logger.WithKV(ctx, "sink", a.name)

	for {
		select {
		case <-ctx.Done():
			a.drain(ctx)
			return
		case event := <-a.queue:
			a.process(ctx, event)
		}
	}
}

func (a *Async) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	for {
		select {
		case event := <-a.queue:
			a.process(drainCtx, event)
		default:
			return
		}
	}
}

func (a *Async) process(ctx context.Context, event Event) {
	if err := a.handler.Process(ctx, event); err != nil {
		logger.ErrorKV(ctx, "Event sink failed", "event_id", event.ID, "topic", event.Topic, "error", err)
	}
}
