package stream

import (
	"sync"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

// Subscriber is one open real-time stream. The event filter is fixed at
// connection time; an empty filter receives everything.
type Subscriber struct {
	filter map[string]struct{}
	ch     chan model.WebhookEvent
}

func (s *Subscriber) C() <-chan model.WebhookEvent {
	return s.ch
}

func (s *Subscriber) wants(eventName string) bool {
	if len(s.filter) == 0 {
		return true
	}
	if _, ok := s.filter[events.Wildcard]; ok {
		return true
	}
	_, ok := s.filter[eventName]
	return ok
}

// Broadcaster fans domain events out to open subscriber streams scoped by
// instance id. A slow subscriber loses the event rather than blocking the bus.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[*Subscriber]struct{}),
	}
}

func (b *Broadcaster) Subscribe(instanceID string, eventNames []string) *Subscriber {
	sub := &Subscriber{
		filter: make(map[string]struct{}, len(eventNames)),
		ch:     make(chan model.WebhookEvent, 16),
	}
	for _, name := range eventNames {
		sub.filter[name] = struct{}{}
	}

	b.mu.Lock()
	if b.subs[instanceID] == nil {
		b.subs[instanceID] = make(map[*Subscriber]struct{})
	}
	b.subs[instanceID][sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe stops targeting the subscriber; closing the transport connection
// is the caller's concern.
func (b *Broadcaster) Unsubscribe(instanceID string, sub *Subscriber) {
	b.mu.Lock()
	if set, ok := b.subs[instanceID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, instanceID)
		}
	}
	b.mu.Unlock()
}

// Dispatch is the bus subscriber entry point.
func (b *Broadcaster) Dispatch(event model.WebhookEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[event.InstanceID] {
		if !sub.wants(event.Event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// SubscriberCount reports open streams for one instance.
func (b *Broadcaster) SubscriberCount(instanceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[instanceID])
}
