// Package kafka publishes auth events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	leaseAuth "github.com/leasehub/leaseAuth"
)

// Writer is the subset of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the producer created by [NewSink].
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	// WriteTimeout bounds a single publish. Zero means 5s.
	WriteTimeout time.Duration
}

// Sink is a [leaseAuth.EventSink] that writes one JSON message per event,
// keyed by user so a user's events stay ordered within a partition.
// Failures are logged and counted; Emit never returns an error because the
// engine's dispatcher is fire-and-forget.
type Sink struct {
	w            Writer
	topic        string
	writeTimeout time.Duration
	log          *zap.Logger
	failed       atomic.Uint64
}

// NewSink builds a kafka-go writer for cfg.
func NewSink(cfg Config, log *zap.Logger) *Sink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return NewSinkWithWriter(w, cfg.Topic, cfg.WriteTimeout, log)
}

// NewSinkWithWriter wraps an existing writer.
func NewSinkWithWriter(w Writer, topic string, writeTimeout time.Duration, log *zap.Logger) *Sink {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		w:            w,
		topic:        topic,
		writeTimeout: writeTimeout,
		log:          log.With(zap.String("component", "kafka.sink"), zap.String("topic", topic)),
	}
}

var _ leaseAuth.EventSink = (*Sink)(nil)

func (s *Sink) Emit(ctx context.Context, event leaseAuth.Event) {
	if s == nil || s.w == nil {
		return
	}

	value, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.log.Error("event marshal failed", zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := s.w.WriteMessages(writeCtx, msg); err != nil {
		s.failed.Add(1)
		s.log.Warn("kafka write failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return
	}
	s.log.Debug("event published", zap.String("event_type", event.Type), zap.Int("value_len", len(value)))
}

// Failed returns the number of events that could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

func (s *Sink) Close() error {
	if s == nil || s.w == nil {
		return nil
	}
	return s.w.Close()
}
