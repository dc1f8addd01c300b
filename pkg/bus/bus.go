// Package bus moves committed change events between services over Kafka.
// Events are keyed by Event.PartitionKey, so everything one subscription can
// observe lands on one partition and arrives in commit order.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-sync/pkg/model"
	"github.com/mahaj/chat-sync/pkg/obs"
)

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return &Producer{writer: writer, logger: logger}
}

// Publish writes one event to the bus. Callers publish after the store write
// commits; a publish failure is surfaced, never swallowed.
func (p *Producer) Publish(ctx context.Context, ev *model.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.PartitionKey()),
		Value: value,
		Time:  ev.Timestamp,
	})
	if err != nil {
		p.logger.Error("publish event failed", "kind", ev.Kind, "error", err)
		return err
	}
	obs.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

func (p *Producer) Close() error { return p.writer.Close() }

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer joins a shared consumer group; the group splits partitions
// among its members. Used by the counters service.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, logger: logger}
}

// NewFanoutConsumer joins a fresh single-member group starting at the log
// tail, so every gateway instance sees every event. Missed history is never
// replayed; reconnecting clients get fresh snapshots instead.
func NewFanoutConsumer(brokers []string, topic string, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "gateway-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: r, logger: logger}
}

// Run feeds decoded events to fn until ctx is canceled. Transient read errors
// back off and retry; malformed payloads are skipped.
func (c *Consumer) Run(ctx context.Context, fn func(*model.Event)) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			c.logger.Error("read event failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			c.logger.Error("decode event failed", "error", err)
			continue
		}
		fn(&ev)
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
