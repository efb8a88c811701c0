package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus backed by Redis pub/sub, letting sessions on one node
// receive events published by another. Each subscription holds its own
// Redis PubSub connection, matching the go-redis connection model.
type RedisBus struct {
	client redis.UniversalClient
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// RedisBusOptions groups dependencies for NewRedisBus.
type RedisBusOptions struct {
	Client redis.UniversalClient
	Logger *slog.Logger
}

// NewRedisBus creates a Redis-backed bus.
func NewRedisBus(opts RedisBusOptions) *RedisBus {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client: opts.Client,
		logger: logger.With("component", "pubsub"),
	}
}

// Publish sends the payload to every subscriber of the topic, cluster-wide.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// Subscribe opens a Redis subscription on the topic. The pump goroutine
// copies messages into the subscriber channel without blocking; a full
// buffer drops the message, same as the in-process bus.
func (b *RedisBus) Subscribe(topic string, buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	out := make(chan []byte, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(out)
		return out, func() {}
	}
	ps := b.client.Subscribe(context.Background(), topic)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				b.logger.Warn("subscriber buffer full, dropping message", "topic", topic)
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				b.logger.Warn("close subscription", "topic", topic, "err", err)
			}
		})
	}

	return out, unsubscribe
}

// Close marks the bus closed. Open subscriptions are shut by their own
// unsubscribe functions; Close waits for their pumps to drain.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
