// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for testing and
// single-binary deployments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spirals/formula-dispatch/internal/domain/events"
)

var _ events.EventBus = (*Broker)(nil)

// Broker provides an in-memory implementation of the events.EventBus
// interface. It enables decoupled communication between components through
// event passing without any external infrastructure.
type Broker struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]*subscription
}

type subscription struct {
	handler events.HandlerFunc
	removed bool
}

// NewBroker creates and initializes a new in-memory event broker.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[events.EventType][]*subscription)}
}

// Publish delivers an event envelope to every handler subscribed to its type,
// stopping at the first handler error. Handlers are copied before iteration to
// avoid holding the lock while executing them.
func (b *Broker) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	if params.Key != "" {
		event.Key = params.Key
	}
	if len(params.Headers) > 0 {
		event.Headers = params.Headers
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.handlers[event.Type]))
	for _, s := range b.handlers[event.Type] {
		if !s.removed {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Acknowledgment is a no-op for the in-memory broker; there are no
		// offsets to commit.
		if err := s.handler(ctx, event, func(error) {}); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types. The subscription is
// removed when the provided context is canceled.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	sub := &subscription{handler: handler}

	b.mu.Lock()
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], sub)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		sub.removed = true
		b.mu.Unlock()
	}()

	return nil
}

// Close releases broker resources. The in-memory broker holds none beyond its
// handler table, which is cleared so late publishes deliver nowhere.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[events.EventType][]*subscription)
	return nil
}
