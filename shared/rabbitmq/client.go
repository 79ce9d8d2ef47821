package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends a JSON job to a named work queue.
type Publisher interface {
	PublishJSON(ctx context.Context, queueName string, v interface{}) error
}

type RabbitmqClient struct {
	conn *amqp.Connection
	chn  *amqp.Channel
}

func NewClient(url string) (*RabbitmqClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &RabbitmqClient{conn: conn, chn: chn}, nil
}

func (r *RabbitmqClient) Close() error {
	if err := r.chn.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// CreateQueue declares a durable queue. Declaring an existing queue with the
// same arguments is a no-op.
func (r *RabbitmqClient) CreateQueue(queueName string) error {
	_, err := r.chn.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	return err
}

// Publish sends a persistent message to queueName via the default exchange.
func (r *RabbitmqClient) Publish(ctx context.Context, queueName string, body []byte) error {
	return r.chn.PublishWithContext(
		ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (r *RabbitmqClient) PublishJSON(ctx context.Context, queueName string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.Publish(ctx, queueName, body); err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}
