// Package inmemory provides a process-local messaging.Broker used by tests
// and local development.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
)

// Broker queues JSON payloads in memory. Consume drains synchronously via
// Deliver; tests drive delivery explicitly.
type Broker struct {
	mu       sync.Mutex
	queues   map[string][][]byte
	handlers map[string]messaging.Handler
	bindings map[string][]string // exchange -> queues
	closed   bool
}

var _ messaging.Broker = (*Broker)(nil)

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		queues:   make(map[string][][]byte),
		handlers: make(map[string]messaging.Handler),
		bindings: make(map[string][]string),
	}
}

// Publish implements messaging.Broker. When the queue already has a
// registered handler the message is delivered synchronously, so chained
// pipeline stages run to completion within one test call.
func (b *Broker) Publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return messaging.ErrNotConnected
	}
	b.queues[queue] = append(b.queues[queue], body)
	hasHandler := b.handlers[queue] != nil
	b.mu.Unlock()

	if hasHandler {
		b.Deliver(ctx, queue)
	}
	return nil
}

// PublishFanout implements messaging.Broker.
func (b *Broker) PublishFanout(ctx context.Context, exchange string, payload any) error {
	b.mu.Lock()
	queues := append([]string(nil), b.bindings[exchange]...)
	b.mu.Unlock()

	for _, q := range queues {
		if err := b.Publish(ctx, q, payload); err != nil {
			return err
		}
	}
	return nil
}

// Bind attaches a queue to a fanout exchange.
func (b *Broker) Bind(queue, exchange string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings[exchange] = append(b.bindings[exchange], queue)
}

// Consume registers the handler for a queue and processes anything already
// enqueued. Later publishes are delivered via Deliver.
func (b *Broker) Consume(ctx context.Context, queue string, handler messaging.Handler) error {
	b.mu.Lock()
	b.handlers[queue] = handler
	b.mu.Unlock()
	b.Deliver(ctx, queue)
	return nil
}

// Deliver drains a queue through its registered handler, mirroring the
// RabbitMQ broker's always-ack semantics: a failing message moves to the
// _FAILED sibling and delivery continues.
func (b *Broker) Deliver(ctx context.Context, queue string) {
	for {
		b.mu.Lock()
		pending := b.queues[queue]
		handler := b.handlers[queue]
		if len(pending) == 0 || handler == nil {
			b.mu.Unlock()
			return
		}
		body := pending[0]
		b.queues[queue] = pending[1:]
		b.mu.Unlock()

		if err := handler(ctx, body); err != nil {
			_ = b.Publish(ctx, messaging.FailedQueue(queue), json.RawMessage(body))
		}
	}
}

// Pending returns the undelivered messages of a queue.
func (b *Broker) Pending(queue string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.queues[queue]...)
}

// Close implements messaging.Broker.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
