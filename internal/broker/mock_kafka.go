package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MockKafkaWriter records written messages for assertions.
type MockKafkaWriter struct {
	mu              sync.Mutex
	WrittenMessages []kafka.Message
	ShouldFail      bool // flag to simulate failures during writes
}

func (m *MockKafkaWriter) WriteMessages(messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	m.WrittenMessages = append(m.WrittenMessages, messages...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

// Written returns a snapshot of the messages written so far.
func (m *MockKafkaWriter) Written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]kafka.Message, len(m.WrittenMessages))
	copy(res, m.WrittenMessages)
	return res
}

// MockKafkaReader serves a fixed queue of messages, then blocks until the
// context is cancelled.
type MockKafkaReader struct {
	mu         sync.Mutex
	Messages   []kafka.Message
	ShouldFail bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if m.ShouldFail {
		m.mu.Unlock()
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.Messages) > 0 {
		msg := m.Messages[0]
		m.Messages = m.Messages[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *MockKafkaReader) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) Close() error { return nil }
