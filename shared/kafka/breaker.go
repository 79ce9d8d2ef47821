package kafka

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerPublisher trips after a run of failed publishes and fails fast with
// gobreaker.ErrOpenState until the broker has had time to recover.
type BreakerPublisher struct {
	next    Publisher
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewBreakerPublisher(next Publisher, name string, log logrus.FieldLogger) *BreakerPublisher {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}
	return &BreakerPublisher{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: 3 * time.Second,
	}
}

func (b *BreakerPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, key, value)
	})
	return err
}

func (b *BreakerPublisher) State() gobreaker.State { return b.cb.State() }

func (b *BreakerPublisher) Close() error { return b.next.Close() }
