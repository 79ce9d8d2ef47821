package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	skafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Writer defines the subset of segmentio kafka.Writer we need. This makes the producer testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher is the interface used by services to publish events.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// KafkaProducer is a thin wrapper around a kafka writer implementing Publisher.
type KafkaProducer struct {
	writer Writer
	log    logrus.FieldLogger
}

// NewKafkaProducer creates a producer writing to topic on brokers.
func NewKafkaProducer(brokers []string, topic string, log logrus.FieldLogger) *KafkaProducer {
	w := &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
	}
	return &KafkaProducer{writer: w, log: log}
}

// NewKafkaProducerWithWriter allows injecting a test writer.
func NewKafkaProducerWithWriter(w Writer, log logrus.FieldLogger) *KafkaProducer {
	return &KafkaProducer{writer: w, log: log}
}

// Publish marshals value to JSON and writes it under key. Messages with the
// same key land on the same partition, so one manifest's events stay ordered.
func (p *KafkaProducer) Publish(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kafka value: %w", err)
	}
	msg := skafka.Message{Key: []byte(key), Value: b}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithField("key", key).Error("kafka write error")
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
