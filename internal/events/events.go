// Package events streams site activity (applied mutations, enquiries,
// uploads) to Kafka and rolls it up into daily counters.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/query"
)

const (
	TypeMutation = "mutation"
	TypeEnquiry  = "enquiry"
	TypeUpload   = "upload"
)

type Event struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Keys      []string  `json:"keys,omitempty"`
	Principal string    `json:"principal,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Type + ":" + ev.Name), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Emitter publishes in the background so request handlers never wait on the
// broker. Failures are logged only.
type Emitter struct {
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{pub: pub, logger: logger, now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now().UTC()
	}
	go func() {
		if err := e.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
			e.logger.Warn("event_publish_failed", "type", ev.Type, "name", ev.Name, "error", err)
		}
	}()
}

// Mutation emits an applied mutation. It matches query.Client.OnMutation.
func (e *Emitter) Mutation(ctx context.Context, m query.Mutation, keys []query.Key) {
	ev := Event{Type: TypeMutation, Name: m.String()}
	for _, k := range keys {
		ev.Keys = append(ev.Keys, k.String())
	}
	if c, ok := backend.CallerFrom(ctx); ok {
		ev.Principal = c.Principal
	}
	e.Emit(ctx, ev)
}
