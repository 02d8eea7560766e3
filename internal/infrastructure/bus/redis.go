package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus carries fan-out envelopes between server processes over Redis
// pub/sub. It also hands out short-lived leases so periodic jobs that
// notify people run on exactly one process per tick.
type RedisBus struct {
	client *redis.Client
	log    zerolog.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL string, log zerolog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBus{
		client: client,
		log:    log.With().Str("component", "redis-bus").Logger(),
	}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, log zerolog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		log:    log.With().Str("component", "redis-bus").Logger(),
	}
}

// Publish sends a payload on the given channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe consumes the given channels until ctx is cancelled, invoking
// handler for every received message. It blocks; run it on its own
// goroutine.
func (b *RedisBus) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	sub := b.client.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

// TryAcquireLease claims a named lease for ttl without blocking. Returns
// true when this process won the lease, false when another holder exists.
// Leases expire on their own; there is no unlock.
func (b *RedisBus) TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := b.client.SetNX(ctx, "lease:"+name, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return ok, nil
}

// Close releases the underlying client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
