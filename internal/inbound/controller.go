package inbound

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
)

type Controller struct {
	normalizer  *Normalizer
	verifyToken string
}

func NewController(normalizer *Normalizer) *Controller {
	return &Controller{
		normalizer:  normalizer,
		verifyToken: env.MustGetEnvString("WEBHOOK_VERIFY_TOKEN"),
	}
}

// Verify answers the provider's webhook subscription handshake: echo the
// challenge when the mode and token match, 403 otherwise.
func (ctl *Controller) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == ctl.verifyToken {
		log.Print(c).Info("Webhook verification succeeded")
		return c.Status(fiber.StatusOK).SendString(challenge)
	}

	log.Print(c).Warn("Webhook verification rejected")
	return c.SendStatus(fiber.StatusForbidden)
}

// Ingest accepts a provider webhook delivery. An unparseable body is the only
// error condition; a structurally valid payload is always acked with
// {"status":"ok"} so the provider never re-delivers an already-processed
// batch indefinitely.
func (ctl *Controller) Ingest(c *fiber.Ctx) error {
	var payload WebhookPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		log.Print(c).WithError(err).Error("Unparseable webhook payload")
		return router.ResponseBadRequest(c, "Unparseable webhook payload")
	}

	ctl.normalizer.Ingest(c.UserContext(), &payload)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
