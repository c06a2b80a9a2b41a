package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/types/common"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed    bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed = true
	return nil
}

func newTestProducer(w WriterInterface) *Producer {
	return NewProducerWithWriter(w, ProducerConfig{
		Brokers:     []string{"localhost:9092"},
		TopicPrefix: "ami.",
		Source:      "test-replica",
	}, logging.NewNopLogger())
}

type testEvent struct {
	common.BaseEvent
	Structures int `json:"structures"`
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}, MaxRetries: -1}))
}

func TestProducerConfigFrom(t *testing.T) {
	pc := ProducerConfigFrom(config.KafkaConfig{
		Brokers:         []string{"b:9092"},
		TopicPrefix:     "ami.",
		TimeoutMS:       2500,
		ProducerRetries: 5,
	}, "node-a")

	assert.Equal(t, "ami.", pc.TopicPrefix)
	assert.Equal(t, 5, pc.MaxRetries)
	assert.Equal(t, int64(2500), pc.WriteTimeout.Milliseconds())
	assert.Equal(t, "node-a", pc.Source)
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		captured = msgs
		return nil
	}})

	err := p.Publish(context.Background(), &Message{Topic: "t", Key: []byte("k"), Value: []byte("v")})
	require.NoError(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, "t", captured[0].Topic)
	assert.Equal(t, "k", string(captured[0].Key))
	assert.False(t, captured[0].Time.IsZero())
	assert.Equal(t, int64(1), p.Sent())
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})

	assert.True(t, apperrors.IsValidation(p.Publish(context.Background(), &Message{Value: []byte("v")})))
	assert.True(t, apperrors.IsValidation(p.Publish(context.Background(), &Message{Topic: "t"})))
	big := make([]byte, 2*1024*1024)
	assert.True(t, apperrors.IsValidation(p.Publish(context.Background(), &Message{Topic: "t", Value: big})))
}

func TestPublish_Failure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("write failed")
	}})

	err := p.Publish(context.Background(), &Message{Topic: "t", Value: []byte("v")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMessagingError))
	assert.Equal(t, int64(1), p.Failed())
}

func TestPublishEvent_WrapsEnvelope(t *testing.T) {
	var captured kafka.Message
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		captured = msgs[0]
		return nil
	}})

	ev := &testEvent{BaseEvent: common.NewBaseEvent("prediction.completed", "batch-1"), Structures: 2}
	require.NoError(t, p.PublishEvent(context.Background(), TopicPredictionCompleted, ev))

	assert.Equal(t, "ami.prediction.completed", captured.Topic)
	assert.Equal(t, "batch-1", string(captured.Key))

	env, err := MessageToEventEnvelope(&Message{Value: captured.Value})
	require.NoError(t, err)
	assert.Equal(t, "test-replica", env.Source)
	assert.Equal(t, ev.EventID(), env.EventID)

	var decoded testEvent
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, 2, decoded.Structures)
}

func TestClose_Idempotent(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), &Message{Topic: "t", Value: []byte("v")}), ErrProducerClosed)
}
