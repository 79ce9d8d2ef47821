package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Reader is the part of kafka.Reader the consumer loop drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader  Reader
	log     logrus.FieldLogger
	timeout time.Duration
	backoff time.Duration
}

// Handler processes one message. A non-nil error keeps the offset uncommitted
// and the message is handed to the handler again after a backoff.
type Handler func(ctx context.Context, key []byte, value []byte) error

// NewConsumer joins groupID on topic. Instances sharing a group split the partitions.
func NewConsumer(brokers []string, topic string, groupID string, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(r, log.WithFields(logrus.Fields{"topic": topic, "group": groupID}))
}

func NewConsumerWithReader(r Reader, log logrus.FieldLogger) *Consumer {
	return &Consumer{reader: r, log: log, timeout: 10 * time.Second, backoff: time.Second}
}

// Start runs until ctx is cancelled, committing each message only after handler succeeds.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	c.log.Info("kafka consumer started")

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Warn("error fetching message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		// The reader moves on after a fetch, so a failed message is retried
		// here; committing a later offset would skip it for good.
		for {
			processCtx, cancel := context.WithTimeout(ctx, c.timeout)
			err = handler(processCtx, m.Key, m.Value)
			cancel()
			if err == nil {
				break
			}
			c.log.WithError(err).WithField("offset", m.Offset).Error("processing failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.WithError(err).WithField("offset", m.Offset).Error("failed to commit offset")
		}
	}
}

// Close disconnects from the server.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
