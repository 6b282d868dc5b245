package instance

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/types"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/validation"
)

// Standalone sends outside any campaign. Each persisted as an OutboundMessage
// with no campaign id so inbound status updates still resolve it.

func (ctl *Controller) sendPrologue(c *fiber.Ctx, to string) (*model.Instance, error) {
	inst, err := ctl.owned(c)
	if err != nil {
		return nil, err
	}
	if inst.Status != model.InstanceConnected {
		return nil, errNotConnected
	}
	if err := validation.ValidatePhone(to); err != nil {
		return nil, err
	}
	return inst, nil
}

var errNotConnected = fiber.NewError(fiber.StatusBadRequest, "Instance is not connected")

func (ctl *Controller) persistSend(c *fiber.Ctx, inst *model.Instance, to string, body string, mediaURL string, mediaType string, providerMessageID string) {
	record := &model.OutboundMessage{
		ID:                uuid.NewString(),
		InstanceID:        inst.ID,
		To:                to,
		Body:              body,
		MediaURL:          mediaURL,
		MediaType:         mediaType,
		Status:            model.MessageSent,
		ProviderMessageID: providerMessageID,
	}
	if err := ctl.store.InsertOutboundMessage(c.UserContext(), record); err != nil {
		log.Print(c).WithError(err).Error("Failed to persist standalone send")
	}
}

func (ctl *Controller) SendText(c *fiber.Ctx) error {
	var req types.RequestSendText
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	inst, err := ctl.sendPrologue(c, req.To)
	if err != nil {
		return ctl.sendError(c, err)
	}
	if err := validation.ValidateMessageBody(req.Body); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	providerMessageID, err := ctl.client.SendText(c.UserContext(), credentials(inst), req.To, req.Body)
	if err != nil {
		return router.ResponseBadGateway(c, err.Error())
	}

	ctl.persistSend(c, inst, req.To, req.Body, "", "", providerMessageID)
	return router.ResponseSuccessWithData(c, "Success send text message", fiber.Map{"message_id": providerMessageID})
}

func (ctl *Controller) SendMedia(c *fiber.Ctx) error {
	var req types.RequestSendMedia
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	inst, err := ctl.sendPrologue(c, req.To)
	if err != nil {
		return ctl.sendError(c, err)
	}
	if err := validation.ValidateURL(req.MediaURL); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	providerMessageID, err := ctl.client.SendMedia(c.UserContext(), credentials(inst), req.To, req.MediaURL, req.MediaType, req.Caption)
	if err != nil {
		return router.ResponseBadGateway(c, err.Error())
	}

	ctl.persistSend(c, inst, req.To, req.Caption, req.MediaURL, req.MediaType, providerMessageID)
	return router.ResponseSuccessWithData(c, "Success send media message", fiber.Map{"message_id": providerMessageID})
}

func (ctl *Controller) SendTemplate(c *fiber.Ctx) error {
	var req types.RequestSendTemplate
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	inst, err := ctl.sendPrologue(c, req.To)
	if err != nil {
		return ctl.sendError(c, err)
	}
	if req.Name == "" || req.Language == "" {
		return router.ResponseBadRequest(c, "name and language are required")
	}

	providerMessageID, err := ctl.client.SendTemplate(c.UserContext(), credentials(inst), req.To, req.Name, req.Language, req.Components)
	if err != nil {
		return router.ResponseBadGateway(c, err.Error())
	}

	ctl.persistSend(c, inst, req.To, req.Name, "", "", providerMessageID)
	return router.ResponseSuccessWithData(c, "Success send template message", fiber.Map{"message_id": providerMessageID})
}

func (ctl *Controller) SendInteractive(c *fiber.Ctx) error {
	var req types.RequestSendInteractive
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	inst, err := ctl.sendPrologue(c, req.To)
	if err != nil {
		return ctl.sendError(c, err)
	}
	if err := validation.ValidateMessageBody(req.Body); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if len(req.Options) == 0 {
		return router.ResponseBadRequest(c, "at least one option is required")
	}

	providerMessageID, err := ctl.client.SendInteractive(c.UserContext(), credentials(inst), req.To, req.Body, req.Options)
	if err != nil {
		return router.ResponseBadGateway(c, err.Error())
	}

	ctl.persistSend(c, inst, req.To, req.Body, "", "", providerMessageID)
	return router.ResponseSuccessWithData(c, "Success send interactive message", fiber.Map{"message_id": providerMessageID})
}

func (ctl *Controller) sendError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errNotConnected) {
		return router.ResponseBadRequest(c, errNotConnected.Message)
	}
	if errors.Is(err, model.ErrNotFound) {
		return router.ResponseNotFound(c, "Instance not found")
	}
	return router.ResponseBadRequest(c, err.Error())
}
