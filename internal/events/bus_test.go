package events

import (
	"sync"
	"testing"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	wg.Add(3)
	var mu sync.Mutex
	var seen []model.WebhookEvent
	for i := 0; i < 3; i++ {
		bus.Subscribe(func(evt model.WebhookEvent) {
			mu.Lock()
			seen = append(seen, evt)
			mu.Unlock()
			wg.Done()
		})
	}

	bus.Publish(EventMessage, "inst-1", map[string]interface{}{"k": "v"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribers never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, evt := range seen {
		if evt.Event != EventMessage || evt.InstanceID != "inst-1" {
			t.Fatalf("subscriber saw %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("event timestamp not stamped")
		}
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()

	release := make(chan struct{})
	bus.Subscribe(func(model.WebhookEvent) { <-release })
	defer close(release)

	done := make(chan struct{})
	go func() {
		bus.Publish(EventConnection, "inst-1", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Publish(EventCampaignStatus, "inst-1", map[string]interface{}{"status": "RUNNING"})
}
