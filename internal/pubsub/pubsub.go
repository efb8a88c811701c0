// Package pubsub provides the topic fan-out backing for real-time delivery.
// Two interchangeable backends exist: an in-process registry for single-node
// deployments and tests, and a Redis-backed bus for multi-node fan-out.
package pubsub

import "context"

// DefaultSubscriberBuffer is the per-subscriber channel depth used when a
// caller passes a non-positive buffer size.
const DefaultSubscriberBuffer = 64

// Bus is a topic-based publish/subscribe transport. Subscribers receive
// payloads in publish order on a dedicated buffered channel; a subscriber
// that cannot keep up loses messages rather than blocking the publisher.
type Bus interface {
	// Publish sends a payload to every current subscriber of the topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers a new subscriber on the topic and returns its
	// receive channel plus an unsubscribe function. Unsubscribe is
	// idempotent and closes the channel.
	Subscribe(topic string, buffer int) (<-chan []byte, func())
	// Close tears down the bus and every open subscription.
	Close() error
}
