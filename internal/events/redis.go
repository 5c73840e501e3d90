package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "rentops:events"

// RedisBus fans events out through Redis pub/sub so every server instance
// sees every write.
type RedisBus struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Bus = (*RedisBus)(nil)

// RedisConfig configures NewRedisBus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisBusWithClient(client, cfg.Channel), nil
}

// NewRedisBusWithClient wraps an existing client. The bus owns the client
// and closes it on Close.
func NewRedisBusWithClient(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel, done: make(chan struct{})}
}

// Publish sends ev to the channel.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := Encode(stamp(ev))
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription that lives until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.wg.Add(1)
	b.mu.Unlock()

	pubsub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		b.wg.Done()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan Event, SubscriberBuffer)
	go func() {
		defer b.wg.Done()
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					slog.Warn("dropping malformed event",
						"component", "events",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}
				select {
				case out <- ev:
				default: // Drop if channel full
				}
			}
		}
	}()
	return out, nil
}

// Close ends every subscription, waits for subscriber goroutines to exit
// and closes the Redis client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return b.client.Close()
}
