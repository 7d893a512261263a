package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/STRATINT/newsdesk/internal/config"
	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per article, keyed by url so every version of an
// article lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher creates a synchronous producer for cfg.Topic on cfg.Brokers.
func NewKafkaPublisher(cfg config.DeliveryConfig, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewKafkaPublisherWithWriter(writer, cfg.Topic, logger)
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(writer MessageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("kafka publisher initialized", "topic", topic)
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, articles []models.Article) error {
	if len(articles) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(articles))
	for _, a := range articles {
		value, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal article %s: %w", a.URL, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.URL),
			Value: value,
			Time:  a.CollectedAt,
			Headers: []kafka.Header{
				{Key: "source", Value: []byte(a.Source)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Info("articles delivered", "topic", p.topic, "count", len(msgs))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New returns a KafkaPublisher when brokers are configured, otherwise a LogPublisher.
func New(cfg config.DeliveryConfig, logger *slog.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(cfg, logger)
}
