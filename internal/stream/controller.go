package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
)

// InstanceLookup verifies stream ownership before attaching a subscriber.
type InstanceLookup interface {
	GetInstance(ctx context.Context, instanceID string) (*model.Instance, error)
}

type Controller struct {
	store       InstanceLookup
	broadcaster *Broadcaster
	pingEvery   time.Duration
}

func NewController(store InstanceLookup, broadcaster *Broadcaster) *Controller {
	return &Controller{
		store:       store,
		broadcaster: broadcaster,
		pingEvery:   env.GetEnvDurationOrDefault("SSE_PING_INTERVAL", 30*time.Second),
	}
}

// Events streams domain events for one instance as server-sent events. The
// optional events query parameter fixes the subscription filter; ping
// keep-alives fire on an idle timer.
func (ctl *Controller) Events(c *fiber.Ctx) error {
	instanceID := c.Params("instance_id")
	userID, _ := c.Locals("user_id").(string)

	inst, err := ctl.store.GetInstance(c.UserContext(), instanceID)
	if err != nil {
		return router.ResponseNotFound(c, "Instance not found")
	}
	if inst.UserID != userID {
		return router.ResponseForbidden(c, "Instance belongs to another user")
	}

	var filter []string
	if raw := strings.TrimSpace(c.Query("events")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				filter = append(filter, trimmed)
			}
		}
	}

	sub := ctl.broadcaster.Subscribe(instanceID, filter)
	log.Print(c).WithField("instance_id", instanceID).Info("SSE stream opened")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	pingEvery := ctl.pingEvery
	broadcaster := ctl.broadcaster

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer broadcaster.Unsubscribe(instanceID, sub)

		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()

		for {
			select {
			case event := <-sub.C():
				if writeSSE(w, event.Event, event) != nil {
					return
				}
			case <-ticker.C:
				if writeSSE(w, "ping", map[string]interface{}{"timestamp": time.Now().UTC()}) != nil {
					return
				}
			}
		}
	}))

	return nil
}

func writeSSE(w *bufio.Writer, eventName string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data); err != nil {
		return err
	}
	return w.Flush()
}
