package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/config"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	calls     int
	closed    bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.calls++
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed = true
	return nil
}

func TestKafkaPublisher_Handle(t *testing.T) {
	writer := &mockKafkaWriter{}
	publisher := newKafkaPublisher(writer, "complaint-timeline", time.Second, nil)
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	err := publisher.Handle(context.Background(), Event{
		ID:          "e1",
		Type:        EventComplaintEscalated,
		ComplaintID: "c42",
		Timestamp:   at,
		Payload:     TimelinePayload{Description: "Complaint escalated automatically"},
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)

	msg := writer.written[0]
	assert.Equal(t, "complaint-timeline", msg.Topic)
	assert.Equal(t, "c42", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "complaint.escalated", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "e1", decoded.ID)
	assert.Equal(t, "Complaint escalated automatically", decoded.Payload.Description)
}

func TestKafkaPublisher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	writer := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker down")
	}}
	publisher := newKafkaPublisher(writer, "t", 0, nil)

	for i := 0; i < 5; i++ {
		assert.Error(t, publisher.Handle(context.Background(), Event{ID: "e", Type: EventComplaintOverdue}))
	}
	err := publisher.Handle(context.Background(), Event{ID: "e", Type: EventComplaintOverdue})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, writer.calls)
}

func TestKafkaPublisher_RegisterReceivesDispatchedEvents(t *testing.T) {
	writer := &mockKafkaWriter{}
	publisher := newKafkaPublisher(writer, "t", 0, nil)
	d := NewInMemoryDispatcher()
	publisher.Register(d)

	require.NoError(t, d.Publish(context.Background(), Event{ID: "e1", Type: EventComplaintCreated, ComplaintID: "c1"}))
	require.NoError(t, d.Publish(context.Background(), Event{ID: "e2", Type: EventComplaintDeleted, ComplaintID: "c1"}))
	assert.Len(t, writer.written, 2)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(config.KafkaConfig{}, nil)
	assert.Error(t, err)

	publisher, err := NewKafkaPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, TimelineTopic: "t"}, nil)
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
}

func TestNewKafkaWriter_FlushesSingleMessages(t *testing.T) {
	writer := newKafkaWriter(config.KafkaConfig{Brokers: []string{"k1:9092", "k2:9092"}})
	t.Cleanup(func() { _ = writer.Close() })

	assert.Equal(t, 1, writer.BatchSize)
	assert.Equal(t, 10*time.Millisecond, writer.BatchTimeout)
	assert.Equal(t, 10*time.Second, writer.WriteTimeout)
	assert.Equal(t, kafka.RequireAll, writer.RequiredAcks)
	assert.False(t, writer.Async)

	tuned := newKafkaWriter(config.KafkaConfig{
		Brokers:            []string{"k1:9092"},
		BatchTimeoutMillis: 25,
		BatchSize:          8,
	})
	t.Cleanup(func() { _ = tuned.Close() })
	assert.Equal(t, 8, tuned.BatchSize)
	assert.Equal(t, 25*time.Millisecond, tuned.BatchTimeout)
}
