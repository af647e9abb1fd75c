// Package kafka publishes zone events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/oshokin/security-zone/internal/events"
	"github.com/oshokin/security-zone/internal/logger"
)

const (
	// maxRetryInterval caps the delay between write attempts.
	maxRetryInterval = 5 * time.Second
	// maxRetryElapsed is how long one event is retried before it is dropped.
	maxRetryElapsed = time.Minute
)

// messageWriter is the part of kafka.Writer used by the producer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events keyed by zone id so that one zone stays ordered
// within a partition.
type Producer struct {
	// writer sends messages to the brokers.
	writer messageWriter
	// newBackOff builds the retry policy of one write.
	newBackOff func() backoff.BackOff
}

// NewProducer creates a producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

func newProducer(writer messageWriter) *Producer {
	return &Producer{
		writer: writer,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxInterval = maxRetryInterval
			bo.MaxElapsedTime = maxRetryElapsed

			return bo
		},
	}
}

// Process writes one event, retrying with exponential backoff.
func (p *Producer) Process(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ZoneID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(event.Topic)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	return backoff.RetryNotify(func() error {
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}

			return fmt.Errorf("failed to write message: %w", err)
		}

		return nil
	}, backoff.WithContext(p.newBackOff(), ctx), func(err error, next time.Duration) {
		logger.WarnKV(ctx, "Kafka write failed, retrying", "event_id", event.ID, "retry_in", next, "error", err)
	})
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
