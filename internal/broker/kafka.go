package appkafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	config "example.com/mindfeed/internal/init"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter defines an interface for writing messages to Kafka.
type KafkaWriter interface {
	WriteMessages(messages ...kafka.Message) error
	Close() error
}

// KafkaReader defines an interface for reading messages from Kafka.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig holds configuration parameters for Kafka.
type KafkaConfig struct {
	Brokers      []string      // list of Kafka brokers
	Topic        string        // topic name
	Partition    int           // partition number (used for low-level writes)
	WriteTimeout time.Duration // write timeout duration
	ReadTimeout  time.Duration // read timeout duration (used for consumer group)
	GroupID      string        // consumer group ID
}

// ConfigFrom maps application settings to a KafkaConfig. KAFKA_BROKER may
// list several comma separated brokers.
func ConfigFrom(cfg *config.Config) KafkaConfig {
	var brokers []string
	for _, b := range strings.Split(cfg.KafkaBroker, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return KafkaConfig{
		Brokers:      brokers,
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
		GroupID:      cfg.KafkaGroupID,
	}
}

// RealKafkaWriter implements KafkaWriter using kafka.Conn (low-level writes).
// Writes are serialised because the write deadline is per connection.
type RealKafkaWriter struct {
	mu     sync.Mutex
	conn   *kafka.Conn
	config KafkaConfig
}

// NewKafkaWriter dials the partition leader through the first reachable broker.
func NewKafkaWriter(cfg KafkaConfig) (*RealKafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	var errs []error
	for _, broker := range cfg.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
		conn, err := kafka.DialLeader(ctx, "tcp", broker, cfg.Topic, cfg.Partition)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", broker, err))
			continue
		}
		return &RealKafkaWriter{conn: conn, config: cfg}, nil
	}
	return nil, fmt.Errorf("no kafka broker reachable for topic %q: %w", cfg.Topic, errors.Join(errs...))
}

func (w *RealKafkaWriter) WriteMessages(messages ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := w.conn.WriteMessages(messages...); err != nil {
		return fmt.Errorf("write %d message(s) to %s: %w", len(messages), w.config.Topic, err)
	}
	return nil
}

func (w *RealKafkaWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// RealKafkaReader implements KafkaReader using kafka.Reader (consumer group).
type RealKafkaReader struct {
	reader *kafka.Reader
}

// NewKafkaReader creates a new Kafka consumer group reader.
func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        cfg.ReadTimeout,
		CommitInterval: time.Second,
	})
	return &RealKafkaReader{reader: r}
}

func (r *RealKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *RealKafkaReader) Close() error {
	return r.reader.Close()
}
