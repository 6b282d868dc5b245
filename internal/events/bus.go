package events

import (
	"sync"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

// Domain event names. Destination filters may also carry the Wildcard marker.
const (
	EventMessage        = "message"
	EventMessageAck     = "message_ack"
	EventMessageStatus  = "message_status"
	EventCampaignStatus = "campaign_status"
	EventConnection     = "connection"

	Wildcard = "*"
)

// Bus fans domain events out to independent subscribers. Each subscriber is
// invoked on its own goroutine; no ordering is guaranteed across subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []func(model.WebhookEvent)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(fn func(model.WebhookEvent)) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, fn)
	b.mu.Unlock()
}

// Publish is fire-and-forget: emitting components never block on, or observe,
// subscriber outcomes.
func (b *Bus) Publish(event string, instanceID string, data map[string]interface{}) {
	evt := model.WebhookEvent{
		Event:      event,
		InstanceID: instanceID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}

	b.mu.RLock()
	subs := make([]func(model.WebhookEvent), len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, fn := range subs {
		go fn(evt)
	}
}
