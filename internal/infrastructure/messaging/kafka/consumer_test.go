package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/config"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
)

// mockKafkaReader serves queued messages and then blocks until cancelled.
type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockKafkaReader) commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

func newTestConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "test-group",
		Topics:  []string{"ami.model.lifecycle"},
		RetryConfig: RetryConfig{
			MaxRetries:      2,
			RetryBackoff:    time.Millisecond,
			MaxRetryBackoff: 2 * time.Millisecond,
		},
	}
}

func TestValidateConsumerConfig(t *testing.T) {
	cfg := newTestConsumerConfig()
	assert.NoError(t, ValidateConsumerConfig(cfg))

	noBrokers := newTestConsumerConfig()
	noBrokers.Brokers = nil
	assert.Error(t, ValidateConsumerConfig(noBrokers))

	noGroup := newTestConsumerConfig()
	noGroup.GroupID = ""
	assert.Error(t, ValidateConsumerConfig(noGroup))

	badOffset := newTestConsumerConfig()
	badOffset.AutoOffsetReset = "middle"
	assert.Error(t, ValidateConsumerConfig(badOffset))
}

func TestConsumerConfigFrom_PrefixesTopics(t *testing.T) {
	cfg := ConsumerConfigFrom(config.KafkaConfig{
		Brokers:     []string{"b1:9092"},
		GroupID:     "replica-1",
		TopicPrefix: "ami.",
	}, TopicModelLifecycle)

	assert.Equal(t, []string{"ami.model.lifecycle"}, cfg.Topics)
	assert.Equal(t, "replica-1", cfg.GroupID)
}

func TestStart_AlreadyRunning(t *testing.T) {
	c := NewConsumerWithReader(&mockKafkaReader{}, newTestConsumerConfig(), logging.NewNopLogger())
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)
}

func TestConsumeLoop_DispatchesAndCommits(t *testing.T) {
	reader := &mockKafkaReader{queue: []kafka.Message{
		{Topic: "ami.model.lifecycle", Value: []byte("one"), Headers: []kafka.Header{{Key: "event_type", Value: []byte("model.uploaded")}}},
		{Topic: "unknown", Value: []byte("two")},
	}}
	c := NewConsumerWithReader(reader, newTestConsumerConfig(), logging.NewNopLogger())

	got := make(chan *Message, 1)
	c.Subscribe("ami.model.lifecycle", func(_ context.Context, msg *Message) error {
		got <- msg
		return nil
	})
	require.NoError(t, c.Start(context.Background()))

	select {
	case msg := <-got:
		assert.Equal(t, "one", string(msg.Value))
		assert.Equal(t, "model.uploaded", msg.Headers["event_type"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for handler")
	}

	assert.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
	assert.Equal(t, int64(1), c.Processed())
}

func TestProcessMessage_RetrySuccess(t *testing.T) {
	c := NewConsumerWithReader(&mockKafkaReader{}, newTestConsumerConfig(), logging.NewNopLogger())

	attempts := 0
	handler := func(context.Context, *Message) error {
		attempts++
		if attempts < 2 {
			return errors.New("fail")
		}
		return nil
	}

	assert.NoError(t, c.processMessage(context.Background(), &Message{}, handler))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(1), c.metrics.MessagesRetried.Load())
}

func TestProcessMessage_RetryExhausted(t *testing.T) {
	c := NewConsumerWithReader(&mockKafkaReader{}, newTestConsumerConfig(), logging.NewNopLogger())

	var attempts atomic.Int32
	err := c.processMessage(context.Background(), &Message{}, func(context.Context, *Message) error {
		attempts.Add(1)
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestProcessMessage_RecoversPanic(t *testing.T) {
	c := NewConsumerWithReader(&mockKafkaReader{}, newTestConsumerConfig(), logging.NewNopLogger())
	c.config.RetryConfig.MaxRetries = 0

	err := c.processMessage(context.Background(), &Message{}, func(context.Context, *Message) error {
		panic("boom")
	})
	assert.ErrorContains(t, err, "handler panic: boom")
}
