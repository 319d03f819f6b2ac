// Package messaging defines the broker contract the workers and the API
// publish through: durable queues with dead-letter siblings and JSON
// payloads.
package messaging

import (
	"context"
	"errors"
)

// FailedSuffix names the dead-letter sibling of a queue.
const FailedSuffix = "_FAILED"

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = errors.New("not connected to broker")

// Handler processes one delivery. Returning an error routes the message to
// the queue's dead-letter sibling; the original is always acked either way.
type Handler func(ctx context.Context, body []byte) error

// Broker is the publish/consume surface used across the system.
type Broker interface {
	// Publish marshals payload as JSON onto a durable queue.
	Publish(ctx context.Context, queue string, payload any) error
	// PublishFanout marshals payload as JSON onto a fanout exchange.
	PublishFanout(ctx context.Context, exchange string, payload any) error
	// Consume processes queue deliveries one at a time until ctx ends.
	Consume(ctx context.Context, queue string, handler Handler) error
	// Close shuts the connection down.
	Close() error
}

// FailedQueue returns the dead-letter sibling name of a queue.
func FailedQueue(queue string) string {
	return queue + FailedSuffix
}
