package events

import (
	"context"
	"sync"

	"github.com/oshokin/security-zone/internal/logger"
)

// Sink receives emitted events. Handle is called on the emitting goroutine
// and must not block.
type Sink interface {
	Handle(ctx context.Context, event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event Event)

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, event Event) {
	f(ctx, event)
}

// Bus fans events out to its sinks in registration order.
type Bus struct {
	// mu protects sinks.
	mu sync.RWMutex
	// sinks receive every emitted event.
	sinks []Sink
}

// NewBus creates a bus delivering to the provided sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{
		sinks: sinks,
	}
}

// Add registers another sink.
func (b *Bus) Add(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sinks = append(b.sinks, sink)
}

// Emit delivers the event to every sink.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, sink := range sinks {
		sink.Handle(ctx, event)
	}
}

// LogSink writes every event to the context logger.
func LogSink() Sink {
	return SinkFunc(func(ctx context.Context, event Event) {
		logger.InfoKV(ctx, "Zone event",
			"topic", event.Topic,
			"zone_id", event.ZoneID,
			"state", event.State,
			"triggered_devices", event.TriggeredDevices,
			"message", event.Message)
	})
}

// LogNotifier delivers notifications to the process log.
type LogNotifier struct{}

// Notify writes the notification at warning level, or error level for alarms.
func (LogNotifier) Notify(ctx context.Context, n Notification) {
	if n.Severity == SeverityAlarm {
		logger.ErrorKV(ctx, n.Message, "zone_id", n.ZoneID, "severity", n.Severity)
		return
	}

	logger.WarnKV(ctx, n.Message, "zone_id", n.ZoneID, "severity", n.Severity)
}
