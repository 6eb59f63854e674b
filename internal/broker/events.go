package appkafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"example.com/mindfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

var ErrUnknownEvent = errors.New("unknown event type")

// EventType returns the message key for a post: plain posts and quote or
// plain retweets travel under different keys.
func EventType(post models.Post) string {
	if post.IsRetweet {
		return models.EventRetweetCreated
	}
	return models.EventPostCreated
}

// EncodePost builds the Kafka message announcing a new post.
func EncodePost(post models.Post) (kafka.Message, error) {
	data, err := json.Marshal(post)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal post: %w", err)
	}
	return kafka.Message{Key: []byte(EventType(post)), Value: data}, nil
}

// EncodePostDeleted builds the message that retracts post from feeds.
func EncodePostDeleted(post models.Post) (kafka.Message, error) {
	msg, err := EncodePost(post)
	msg.Key = []byte(models.EventPostDeleted)
	return msg, err
}

// DecodePost reverses EncodePost and EncodePostDeleted. Messages without a key are treated as
// post_created.
func DecodePost(msg kafka.Message) (string, models.Post, error) {
	event := string(msg.Key)
	switch event {
	case "":
		event = models.EventPostCreated
	case models.EventPostCreated, models.EventRetweetCreated, models.EventPostDeleted:
	default:
		return event, models.Post{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	var post models.Post
	if err := json.Unmarshal(msg.Value, &post); err != nil {
		return event, models.Post{}, fmt.Errorf("invalid JSON in Kafka message: %w", err)
	}
	if post.ID == "" || post.AuthorID == "" {
		return event, models.Post{}, errors.New("post event without id or author")
	}
	return event, post, nil
}

// PublishPost writes the event for post to w.
func PublishPost(w KafkaWriter, post models.Post) error {
	msg, err := EncodePost(post)
	if err != nil {
		return err
	}
	return w.WriteMessages(msg)
}

// PublishPostDeleted writes the retraction event for post to w.
func PublishPostDeleted(w KafkaWriter, post models.Post) error {
	msg, err := EncodePostDeleted(post)
	if err != nil {
		return err
	}
	return w.WriteMessages(msg)
}
