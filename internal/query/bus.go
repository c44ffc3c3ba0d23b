package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bus carries invalidations between instances of the site sharing one backend.
type Bus interface {
	Publish(ctx context.Context, patterns []Key) error
	// Subscribe delivers patterns published by other instances until ctx is done.
	Subscribe(ctx context.Context, handle func([]Key)) error
	Close() error
}

// LocalBus is used when the site runs as a single instance.
type LocalBus struct{}

func (LocalBus) Publish(context.Context, []Key) error { return nil }

func (LocalBus) Subscribe(ctx context.Context, _ func([]Key)) error {
	<-ctx.Done()
	return nil
}

func (LocalBus) Close() error { return nil }

type busMessage struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// RedisBus fans invalidations out over a Redis pub/sub channel. Messages
// published by this instance are ignored on receipt.
type RedisBus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

func NewRedisBus(addr, password, channel string, logger *slog.Logger) *RedisBus {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisBusFromClient(c, channel, logger)
}

func NewRedisBusFromClient(c *redis.Client, channel string, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: c, channel: channel, origin: uuid.NewString(), logger: logger}
}

func (b *RedisBus) Ping(ctx context.Context) error { return b.client.Ping(ctx).Err() }

func (b *RedisBus) Publish(ctx context.Context, patterns []Key) error {
	msg := busMessage{Origin: b.origin, Keys: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		msg.Keys = append(msg.Keys, p.String())
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, handle func([]Key)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			keys, origin, err := decodeBusMessage(m.Payload)
			if err != nil {
				b.logger.Warn("bus_message_invalid", "channel", b.channel, "error", err)
				continue
			}
			if origin == b.origin {
				continue
			}
			handle(keys)
		}
	}
}

func decodeBusMessage(payload string) ([]Key, string, error) {
	var msg busMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, "", err
	}
	keys := make([]Key, 0, len(msg.Keys))
	for _, s := range msg.Keys {
		k, err := ParseKey(s)
		if err != nil {
			return nil, "", err
		}
		keys = append(keys, k)
	}
	return keys, msg.Origin, nil
}

func (b *RedisBus) Close() error { return b.client.Close() }
