package stream

import (
	"testing"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

func streamEvent(name string, instanceID string) model.WebhookEvent {
	return model.WebhookEvent{
		Event:      name,
		InstanceID: instanceID,
		Timestamp:  time.Now().UTC(),
	}
}

func TestDispatchScopedByInstance(t *testing.T) {
	b := NewBroadcaster()
	mine := b.Subscribe("inst-1", nil)
	other := b.Subscribe("inst-2", nil)
	defer b.Unsubscribe("inst-1", mine)
	defer b.Unsubscribe("inst-2", other)

	b.Dispatch(streamEvent(events.EventMessage, "inst-1"))

	select {
	case evt := <-mine.C():
		if evt.InstanceID != "inst-1" {
			t.Fatalf("received event for %q", evt.InstanceID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received its instance's event")
	}

	select {
	case evt := <-other.C():
		t.Fatalf("wrong instance received %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriberFilter(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("inst-1", []string{events.EventCampaignStatus})
	defer b.Unsubscribe("inst-1", sub)

	b.Dispatch(streamEvent(events.EventMessage, "inst-1"))
	b.Dispatch(streamEvent(events.EventCampaignStatus, "inst-1"))

	select {
	case evt := <-sub.C():
		if evt.Event != events.EventCampaignStatus {
			t.Fatalf("filtered subscriber received %q", evt.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed event never arrived")
	}
}

func TestWildcardFilterReceivesEverything(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("inst-1", []string{events.Wildcard})
	defer b.Unsubscribe("inst-1", sub)

	b.Dispatch(streamEvent(events.EventConnection, "inst-1"))

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber never received event")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("inst-1", nil)
	defer b.Unsubscribe("inst-1", sub)

	// Overfill the buffer; Dispatch must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Dispatch(streamEvent(events.EventMessage, "inst-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full subscriber buffer")
	}

	if got := len(sub.ch); got != cap(sub.ch) {
		t.Fatalf("buffered events = %d, want full buffer %d", got, cap(sub.ch))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("inst-1", nil)

	if got := b.SubscriberCount("inst-1"); got != 1 {
		t.Fatalf("subscriber count = %d, want 1", got)
	}

	b.Unsubscribe("inst-1", sub)
	if got := b.SubscriberCount("inst-1"); got != 0 {
		t.Fatalf("subscriber count after unsubscribe = %d, want 0", got)
	}

	b.Dispatch(streamEvent(events.EventMessage, "inst-1"))
	select {
	case evt := <-sub.C():
		t.Fatalf("unsubscribed stream received %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
