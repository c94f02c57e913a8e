package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/config"
)

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards dispatcher events to a Kafka topic keyed by complaint id,
// so every event of one complaint lands on the same partition in order.
// Writes go through a circuit breaker; while it is open events are dropped and logged.
type KafkaPublisher struct {
	writer  WriterInterface
	topic   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewKafkaPublisher builds a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers not configured")
	}
	return newKafkaPublisher(newKafkaWriter(cfg), cfg.TimelineTopic, cfg.WriteTimeout(), logger), nil
}

// newKafkaWriter configures a synchronous writer. Handle runs inside request and
// sweep paths, so the batch settings keep a single-message write from waiting on
// kafka-go's one second default flush.
func newKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchSize:              cfg.WriterBatchSize(),
		BatchTimeout:           cfg.BatchTimeout(),
		WriteTimeout:           cfg.WriteTimeout(),
	}
}

func newKafkaPublisher(writer WriterInterface, topic string, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: timeout,
		logger:  logger,
	}
	publisher.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-timeline",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("kafka circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return publisher
}

// Register subscribes the publisher to every event type on the dispatcher.
func (p *KafkaPublisher) Register(d Dispatcher) {
	SubscribeAll(d, p.Handle)
}

// Handle writes one event to Kafka.
func (p *KafkaPublisher) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ComplaintID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		writeCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		return nil, p.writer.WriteMessages(writeCtx, msg)
	})
	if err != nil {
		p.logger.Warn("publish timeline event failed",
			zap.String("event_id", event.ID),
			zap.String("complaint_id", event.ComplaintID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
