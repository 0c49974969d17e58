package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"example.com/tinysns/internal/logger"
	"example.com/tinysns/internal/models"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

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

// RealKafkaWriter implements KafkaWriter using kafka.Conn (low-level writes).
type RealKafkaWriter struct {
	conn   *kafka.Conn
	config KafkaConfig
}

// NewKafkaWriter creates a new Kafka writer connection.
func NewKafkaWriter(cfg KafkaConfig) (*RealKafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	conn, err := kafka.DialLeader(context.Background(), "tcp", cfg.Brokers[0], cfg.Topic, cfg.Partition)
	if err != nil {
		return nil, err
	}

	return &RealKafkaWriter{
		conn:   conn,
		config: cfg,
	}, nil
}

func (w *RealKafkaWriter) WriteMessages(messages ...kafka.Message) error {
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	_, err := w.conn.WriteMessages(messages...)
	return err
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

// Message keys on the shared topic.
const (
	KeyPostCreated = "post_created"
	KeyUserCreated = "user_created"
)

// KafkaBus is the Bus for multi-instance deployments: publishes go to the
// topic, and a reader pump feeds events consumed from the topic (including
// this instance's own) back into a local MemoryBus for subscribers.
type KafkaBus struct {
	writer KafkaWriter
	local  *MemoryBus
}

func NewKafkaBus(writer KafkaWriter) *KafkaBus {
	return &KafkaBus{
		writer: writer,
		local:  NewMemoryBus(),
	}
}

func (b *KafkaBus) Publish(post models.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(kafka.Message{
		Key:   []byte(KeyPostCreated),
		Value: data,
	})
}

func (b *KafkaBus) PublishUser(username string) error {
	data, err := json.Marshal(models.User{Username: username})
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(kafka.Message{
		Key:   []byte(KeyUserCreated),
		Value: data,
	})
}

func (b *KafkaBus) Subscribe() (<-chan models.Post, func()) {
	return b.local.Subscribe()
}

func (b *KafkaBus) Close() error {
	werr := b.writer.Close()
	if err := b.local.Close(); err != nil {
		return err
	}
	return werr
}

// Pump reads post events from the topic and fans them out locally. It runs
// until ctx is cancelled, backing off on read errors.
func (b *KafkaBus) Pump(ctx context.Context, reader KafkaReader) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logg.Error("broker", "Kafka read error in event pump", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// User events ride the same topic for the archiver; timeline
		// sessions only wake on posts.
		if string(msg.Key) == KeyUserCreated {
			continue
		}

		var post models.Post
		if err := json.Unmarshal(msg.Value, &post); err != nil {
			logg.Error("broker", "Invalid JSON in Kafka post event", err)
			continue
		}
		_ = b.local.Publish(post)
	}
}
