package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	skafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
)

// fakeWriter is a test writer that records messages written.
type fakeWriter struct {
	msgs []skafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublish(t *testing.T) {
	log, _ := test.NewNullLogger()
	fw := &fakeWriter{}
	p := NewKafkaProducerWithWriter(fw, log)
	err := p.Publish(context.Background(), "manifest-1", map[string]string{"type": "manifest.closed"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != "manifest-1" {
		t.Fatalf("expected key manifest-1, got %q", fw.msgs[0].Key)
	}
	var body map[string]string
	if err := json.Unmarshal(fw.msgs[0].Value, &body); err != nil || body["type"] != "manifest.closed" {
		t.Fatalf("unexpected body %s (%v)", fw.msgs[0].Value, err)
	}
}

func TestPublishWriteError(t *testing.T) {
	log, hook := test.NewNullLogger()
	boom := errors.New("broker unreachable")
	p := NewKafkaProducerWithWriter(&fakeWriter{err: boom}, log)

	err := p.Publish(context.Background(), "k", "v")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
	if len(hook.Entries) != 1 {
		t.Fatalf("expected the failure to be logged once, got %d entries", len(hook.Entries))
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	log, _ := test.NewNullLogger()
	fw := &fakeWriter{err: errors.New("broker unreachable")}
	bp := NewBreakerPublisher(NewKafkaProducerWithWriter(fw, log), "manifest-events", log)

	for i := 0; i < 5; i++ {
		if err := bp.Publish(context.Background(), "k", "v"); err == nil {
			t.Fatalf("publish %d: expected error", i)
		}
	}
	if bp.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", bp.State())
	}

	fw.err = nil
	if err := bp.Publish(context.Background(), "k", "v"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState while open, got %v", err)
	}
	if len(fw.msgs) != 0 {
		t.Fatalf("open breaker must not reach the writer")
	}
}
