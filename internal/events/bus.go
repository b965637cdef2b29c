// Package events defines the event source contract the agent subscribes to
// and an in-memory bus for tests and embedding.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// Handler receives one event. Handlers own their error handling; the bus
// does not interpret outcomes.
type Handler func(ctx context.Context, event *models.TaskEvent)

// Subscription is the per-subscription cancellation token.
type Subscription interface {
	// Unsubscribe removes the subscription. Safe to call more than once.
	Unsubscribe()
}

// Source is the subscription surface the agent consumes.
type Source interface {
	Subscribe(event string, h Handler) (Subscription, error)
}

// MemoryBus is a synchronous in-process event bus. Publish invokes handlers
// inline, in subscription order, so events delivered by sequential Publish
// calls arrive in publish order.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*busSubscription
}

type busSubscription struct {
	bus     *MemoryBus
	event   string
	id      string
	handler Handler
	once    sync.Once
}

func (s *busSubscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.event, s.id) })
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*busSubscription)}
}

// Subscribe registers a handler for one event name.
func (b *MemoryBus) Subscribe(event string, h Handler) (Subscription, error) {
	if event == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}
	sub := &busSubscription{bus: b, event: event, id: uuid.NewString(), handler: h}
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()
	return sub, nil
}

// Publish delivers the event to every handler subscribed to its name,
// synchronously and in subscription order. Missing id and timestamp are
// stamped before delivery.
func (b *MemoryBus) Publish(ctx context.Context, event *models.TaskEvent) {
	if event == nil || event.Name == "" {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event.Name]))
	for _, sub := range b.subs[event.Name] {
		handlers = append(handlers, sub.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}

// SubscriberCount reports the handlers registered for an event name.
func (b *MemoryBus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

func (b *MemoryBus) remove(event, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[event]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[event]) == 0 {
		delete(b.subs, event)
	}
}
