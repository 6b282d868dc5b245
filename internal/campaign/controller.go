package campaign

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/storage"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/types"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/validation"
)

type Controller struct {
	store      *storage.Store
	dispatcher *Dispatcher
}

func NewController(store *storage.Store, dispatcher *Dispatcher) *Controller {
	return &Controller{store: store, dispatcher: dispatcher}
}

func (ctl *Controller) ownedCampaign(c *fiber.Ctx) (*model.Campaign, error) {
	campaignID := c.Params("campaign_id")
	userID, _ := c.Locals("user_id").(string)

	cmp, err := ctl.store.GetCampaign(c.UserContext(), campaignID)
	if err != nil {
		return nil, err
	}
	inst, err := ctl.store.GetInstance(c.UserContext(), cmp.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.UserID != userID {
		return nil, model.ErrNotFound
	}
	return cmp, nil
}

func (ctl *Controller) Create(c *fiber.Ctx) error {
	instanceID := c.Params("instance_id")
	userID, _ := c.Locals("user_id").(string)

	var req types.RequestCreateCampaign
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	if req.Name == "" {
		return router.ResponseBadRequest(c, "name is required")
	}
	if err := validation.ValidateCampaignDelay(req.DelayMs); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if len(req.Messages) == 0 {
		return router.ResponseBadRequest(c, "at least one message is required")
	}

	inst, err := ctl.store.GetInstance(c.UserContext(), instanceID)
	if err != nil {
		return router.ResponseNotFound(c, "Instance not found")
	}
	if inst.UserID != userID {
		return router.ResponseNotFound(c, "Instance not found")
	}

	messages := make([]*model.OutboundMessage, 0, len(req.Messages))
	for _, item := range req.Messages {
		if err := validation.ValidatePhone(item.To); err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
		if item.MediaURL == "" {
			if err := validation.ValidateMessageBody(item.Body); err != nil {
				return router.ResponseBadRequest(c, err.Error())
			}
		} else if err := validation.ValidateURL(item.MediaURL); err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
		messages = append(messages, &model.OutboundMessage{
			ID:         uuid.NewString(),
			InstanceID: instanceID,
			To:         item.To,
			Body:       item.Body,
			MediaURL:   item.MediaURL,
			MediaType:  item.MediaType,
			Status:     model.MessagePending,
		})
	}

	cmp := &model.Campaign{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Name:       req.Name,
		Status:     model.CampaignPending,
		DelayMs:    req.DelayMs,
	}

	if err := ctl.store.CreateCampaign(c.UserContext(), cmp, messages); err != nil {
		log.Print(c).WithError(err).Error("Failed to create campaign")
		return router.ResponseInternalError(c, "Failed to create campaign")
	}

	created, err := ctl.store.GetCampaign(c.UserContext(), cmp.ID)
	if err != nil {
		created = cmp
	}
	return router.ResponseCreatedWithData(c, "Campaign created", created)
}

func (ctl *Controller) List(c *fiber.Ctx) error {
	instanceID := c.Params("instance_id")
	userID, _ := c.Locals("user_id").(string)

	inst, err := ctl.store.GetInstance(c.UserContext(), instanceID)
	if err != nil || inst.UserID != userID {
		return router.ResponseNotFound(c, "Instance not found")
	}

	campaigns, err := ctl.store.ListCampaignsByInstance(c.UserContext(), instanceID)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to list campaigns")
	}
	return router.ResponseSuccessWithData(c, "Success get campaigns", campaigns)
}

func (ctl *Controller) Get(c *fiber.Ctx) error {
	cmp, err := ctl.ownedCampaign(c)
	if err != nil {
		return router.ResponseNotFound(c, "Campaign not found")
	}
	return router.ResponseSuccessWithData(c, "Success get campaign", cmp)
}

func (ctl *Controller) Messages(c *fiber.Ctx) error {
	cmp, err := ctl.ownedCampaign(c)
	if err != nil {
		return router.ResponseNotFound(c, "Campaign not found")
	}

	messages, err := ctl.store.ListMessagesByCampaign(c.UserContext(), cmp.ID)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to list messages")
	}
	return router.ResponseSuccessWithData(c, "Success get campaign messages", messages)
}

func (ctl *Controller) Start(c *fiber.Ctx) error {
	cmp, err := ctl.ownedCampaign(c)
	if err != nil {
		return router.ResponseNotFound(c, "Campaign not found")
	}

	if err := ctl.dispatcher.Start(c.UserContext(), cmp.ID); err != nil {
		return ctl.controlError(c, err)
	}
	return router.ResponseSuccess(c, "Campaign started")
}

func (ctl *Controller) Pause(c *fiber.Ctx) error {
	cmp, err := ctl.ownedCampaign(c)
	if err != nil {
		return router.ResponseNotFound(c, "Campaign not found")
	}

	if err := ctl.dispatcher.Pause(c.UserContext(), cmp.ID); err != nil {
		return ctl.controlError(c, err)
	}
	return router.ResponseSuccess(c, "Campaign paused")
}

func (ctl *Controller) Resume(c *fiber.Ctx) error {
	cmp, err := ctl.ownedCampaign(c)
	if err != nil {
		return router.ResponseNotFound(c, "Campaign not found")
	}

	if err := ctl.dispatcher.Resume(c.UserContext(), cmp.ID); err != nil {
		return ctl.controlError(c, err)
	}
	return router.ResponseSuccess(c, "Campaign resumed")
}

func (ctl *Controller) Cancel(c *fiber.Ctx) error {
	cmp, err := ctl.ownedCampaign(c)
	if err != nil {
		return router.ResponseNotFound(c, "Campaign not found")
	}

	if err := ctl.dispatcher.Cancel(c.UserContext(), cmp.ID); err != nil {
		return ctl.controlError(c, err)
	}
	return router.ResponseSuccess(c, "Campaign cancelled")
}

func (ctl *Controller) Delete(c *fiber.Ctx) error {
	cmp, err := ctl.ownedCampaign(c)
	if err != nil {
		return router.ResponseNotFound(c, "Campaign not found")
	}
	if cmp.Status == model.CampaignRunning {
		return router.ResponseBadRequest(c, "Cannot delete a running campaign")
	}

	if err := ctl.store.DeleteCampaign(c.UserContext(), cmp.ID); err != nil {
		return router.ResponseInternalError(c, "Failed to delete campaign")
	}
	return router.ResponseSuccess(c, "Campaign deleted")
}

func (ctl *Controller) controlError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return router.ResponseNotFound(c, "Campaign not found")
	case errors.Is(err, ErrNotPending),
		errors.Is(err, ErrNotRunning),
		errors.Is(err, ErrNotPaused),
		errors.Is(err, ErrTerminal),
		errors.Is(err, ErrInstanceNotConnected):
		return router.ResponseBadRequest(c, err.Error())
	default:
		log.Print(c).WithError(err).Error("Campaign control operation failed")
		return router.ResponseInternalError(c, "Campaign control operation failed")
	}
}
