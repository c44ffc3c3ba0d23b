package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parcel_express",
		Name:      "activity_messages_consumed_total",
		Help:      "Total activity messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parcel_express",
		Name:      "activity_messages_invalid_total",
		Help:      "Total invalid activity messages received",
	})
	counterErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parcel_express",
		Name:      "activity_counter_errors_total",
		Help:      "Total failed counter updates",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, counterErrors)
}

// Counter is the subset of Redis the rollup needs.
type Counter interface {
	HIncrBy(ctx context.Context, key, field string, n int64) error
}

type RedisCounter struct{ C *redis.Client }

func (r RedisCounter) HIncrBy(ctx context.Context, key, field string, n int64) error {
	return r.C.HIncrBy(ctx, key, field, n).Err()
}

// DayKey is the hash holding the counters of the day t falls in.
func DayKey(t time.Time) string { return "activity:" + t.UTC().Format("2006-01-02") }

// Field is the counter an event increments.
func Field(ev Event) string { return ev.Type + ":" + ev.Name }

// recordWithRetry increments ev's counter, retrying with doubling delay.
func recordWithRetry(ctx context.Context, c Counter, ev Event, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = c.HIncrBy(ctx, DayKey(ev.At), Field(ev), 1); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// Consumer rolls activity events from Kafka into daily Redis counters.
type Consumer struct {
	reader  *kafka.Reader
	counter Counter
	logger  *slog.Logger
}

func NewConsumer(brokers []string, topic, group string, counter Counter, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 1, MaxBytes: 10e6})
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: r, counter: counter, logger: logger}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka_read_failed", "error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()
		c.handle(ctx, m.Value)
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil || ev.Type == "" {
		msgsInvalid.Inc()
		c.logger.Warn("activity_message_invalid", "error", err)
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := recordWithRetry(ctx, c.counter, ev, 3, 200*time.Millisecond); err != nil {
		counterErrors.Inc()
		c.logger.Error("activity_counter_failed", "field", Field(ev), "error", err)
	}
}
