package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryBus is an in-process Bus for single-node deployments and tests.
// Publishing and (un)subscription share one mutex, so every subscriber
// channel observes payloads in publish order and no send can race a close.
type MemoryBus struct {
	mu     sync.Mutex
	logger *slog.Logger
	closed bool
	nextID uint64
	topics map[string]map[uint64]chan []byte
}

// MemoryBusOptions groups optional dependencies for NewMemoryBus.
type MemoryBusOptions struct {
	Logger *slog.Logger
}

// NewMemoryBus creates a new in-process bus.
func NewMemoryBus(opts MemoryBusOptions) *MemoryBus {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		logger: logger.With("component", "pubsub"),
		topics: make(map[string]map[uint64]chan []byte),
	}
}

// Publish sends the payload to every subscriber of the topic. A subscriber
// with a full buffer is skipped; slow consumers never block the publisher.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	for id, ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
			b.logger.WarnContext(ctx, "subscriber buffer full, dropping message",
				"topic", topic, "subscriber_id", id)
		}
	}
	return nil
}

// Subscribe registers a subscriber on the topic.
func (b *MemoryBus) Subscribe(topic string, buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan []byte, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]chan []byte)
	}
	b.topics[topic][id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.topics[topic]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
					if len(subs) == 0 {
						delete(b.topics, topic)
					}
				}
			}
		})
	}

	return ch, unsubscribe
}

// Close tears down every subscription. Further publishes are dropped.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, subs := range b.topics {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.topics, topic)
	}
	return nil
}
