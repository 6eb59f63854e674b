package appkafka

import (
	"context"
	"errors"
	"sync"

	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/store"
	"github.com/segmentio/kafka-go"
)

// MockKafka immediately applies published events to the author's and
// followers' feeds.
type MockKafka struct {
	mu              sync.Mutex
	Store           *store.MockStore
	WrittenMessages []kafka.Message // stores messages written via WriteMessages
	ReadMessages    []kafka.Message // queue of messages to be read via ReadMessage
	ShouldFail      bool            // flag to simulate failures during write or read operations
}

// WriteMessages records the messages and delivers each post right away.
func (m *MockKafka) WriteMessages(messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	if m.Store == nil {
		return errors.New("store is nil")
	}

	for _, msg := range messages {
		event, post, err := DecodePost(msg)
		if err != nil {
			return err
		}
		m.WrittenMessages = append(m.WrittenMessages, msg)

		apply := m.Store.AddToFeed
		if event == models.EventPostDeleted {
			apply = m.Store.RemoveFromFeed
		}
		_ = apply(post.AuthorID, post)
		followers, _ := m.Store.GetFollowers(post.AuthorID)
		for _, followerID := range followers {
			_ = apply(followerID, post)
		}
	}

	return nil
}

// ReadMessage pops the next queued message.
func (m *MockKafka) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	// Take the first message from the queue and remove it
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

// Written returns a copy of the messages written so far.
func (m *MockKafka) Written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.WrittenMessages...)
}

// SetFail switches ShouldFail while writers may be running.
func (m *MockKafka) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) Close() error { return nil }
