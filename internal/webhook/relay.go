package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
)

const userAgent = "WhatsApp-Campaign-Gateway/1.0"

// Destination is one callback URL with its subscribed-event filter. An empty
// filter means every event.
type Destination struct {
	URL    string
	Events []string
}

// InstanceLookup resolves the per-instance webhook configuration.
type InstanceLookup interface {
	GetInstance(ctx context.Context, instanceID string) (*model.Instance, error)
}

type deliveryTask struct {
	destination Destination
	event       model.WebhookEvent
}

// Relay fans domain events out to configured callback URLs. Delivery is
// best-effort: bounded retry with exponential backoff, failures observable
// only in logs.
type Relay struct {
	store       InstanceLookup
	httpClient  *http.Client
	queue       chan *deliveryTask
	workers     int
	maxAttempts int
	backoffBase time.Duration

	globalURL    string
	globalEvents []string

	enabled bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRelay(store InstanceLookup) *Relay {
	workers := env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4)
	if workers <= 0 {
		workers = 4
	}
	maxAttempts := env.GetEnvIntOrDefault("WEBHOOK_MAX_RETRIES", 3)
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	timeout := env.GetEnvDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second)

	var globalEvents []string
	if raw := env.GetEnvStringOrDefault("WEBHOOK_GLOBAL_EVENTS", ""); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				globalEvents = append(globalEvents, trimmed)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	relay := &Relay{
		store:        store,
		httpClient:   &http.Client{Timeout: timeout},
		queue:        make(chan *deliveryTask, 1000),
		workers:      workers,
		maxAttempts:  maxAttempts,
		backoffBase:  time.Second,
		globalURL:    env.GetEnvStringOrDefault("WEBHOOK_GLOBAL_URL", ""),
		globalEvents: globalEvents,
		enabled:      env.GetEnvBoolOrDefault("WEBHOOKS_ENABLED", true),
		ctx:          ctx,
		cancel:       cancel,
	}

	if relay.enabled {
		for i := 0; i < workers; i++ {
			relay.wg.Add(1)
			go relay.worker()
		}
	}

	return relay
}

func (r *Relay) Shutdown() {
	r.cancel()
	close(r.queue)
	r.wg.Wait()
}

// Dispatch is the bus subscriber entry point. It resolves up to two
// destinations (instance webhook + global fallback) and queues a delivery for
// each; destinations retry independently of one another.
func (r *Relay) Dispatch(event model.WebhookEvent) {
	if !r.enabled {
		return
	}

	for _, dest := range r.destinations(event.InstanceID) {
		if !shouldDeliver(dest, event.Event) {
			continue
		}
		select {
		case r.queue <- &deliveryTask{destination: dest, event: event}:
		default:
			log.Instance(event.InstanceID).WithField("event", event.Event).Warn("Webhook queue full, dropping delivery")
		}
	}
}

func (r *Relay) destinations(instanceID string) []Destination {
	var destinations []Destination

	inst, err := r.store.GetInstance(r.ctx, instanceID)
	if err != nil {
		log.Instance(instanceID).WithError(err).Error("Failed to resolve instance webhook config")
	} else if inst.WebhookURL != "" {
		destinations = append(destinations, Destination{URL: inst.WebhookURL, Events: inst.WebhookEvents})
	}

	if r.globalURL != "" {
		destinations = append(destinations, Destination{URL: r.globalURL, Events: r.globalEvents})
	}

	return destinations
}

func shouldDeliver(dest Destination, eventName string) bool {
	if len(dest.Events) == 0 {
		return true
	}
	for _, name := range dest.Events {
		if name == events.Wildcard || name == eventName {
			return true
		}
	}
	return false
}

func (r *Relay) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case task, ok := <-r.queue:
			if !ok {
				return
			}
			r.deliver(task)
		}
	}
}

// deliver posts the event envelope, retrying up to maxAttempts with
// exponential backoff (1s, 2s, 4s, ...). Any non-2xx response, network error
// or per-attempt timeout counts as a failed attempt.
func (r *Relay) deliver(task *deliveryTask) {
	payload, err := json.Marshal(task.event)
	if err != nil {
		log.Instance(task.event.InstanceID).WithError(err).Error("Failed to marshal webhook payload")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		lastErr = r.attempt(task.destination.URL, payload, task.event.Event)
		if lastErr == nil {
			log.Instance(task.event.InstanceID).
				WithField("event", task.event.Event).
				WithField("url", task.destination.URL).
				WithField("attempt", attempt).
				Info("Webhook delivered")
			return
		}

		if attempt < r.maxAttempts {
			backoff := r.backoffBase << (attempt - 1)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}

	log.Instance(task.event.InstanceID).
		WithField("event", task.event.Event).
		WithField("url", task.destination.URL).
		WithField("attempts", r.maxAttempts).
		WithError(lastErr).
		Error("Webhook delivery exhausted retries")
}

func (r *Relay) attempt(url string, payload []byte, eventName string) error {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", eventName)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}
