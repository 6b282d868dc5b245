package instance

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/storage"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/types"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/validation"
)

type Controller struct {
	store      *storage.Store
	client     *cloudapi.Client
	sessions   *cloudapi.SessionCache
	bus        *events.Bus
	maxPerUser int
}

func NewController(store *storage.Store, client *cloudapi.Client, sessions *cloudapi.SessionCache, bus *events.Bus) *Controller {
	return &Controller{
		store:      store,
		client:     client,
		sessions:   sessions,
		bus:        bus,
		maxPerUser: env.GetEnvIntOrDefault("MAX_INSTANCES_PER_USER", 5),
	}
}

func (ctl *Controller) owned(c *fiber.Ctx) (*model.Instance, error) {
	instanceID := c.Params("instance_id")
	userID, _ := c.Locals("user_id").(string)

	inst, err := ctl.store.GetInstance(c.UserContext(), instanceID)
	if err != nil {
		return nil, err
	}
	if inst.UserID != userID {
		return nil, model.ErrNotFound
	}
	return inst, nil
}

func credentials(inst *model.Instance) cloudapi.Credentials {
	return cloudapi.Credentials{
		PhoneNumberID:     inst.PhoneNumberID,
		AccessToken:       inst.AccessToken,
		BusinessAccountID: inst.BusinessAccountID,
	}
}

func (ctl *Controller) Create(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req types.RequestCreateInstance
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if req.Name == "" || req.PhoneNumberID == "" || req.AccessToken == "" {
		return router.ResponseBadRequest(c, "name, phone_number_id and access_token are required")
	}

	count, err := ctl.store.CountInstancesByUser(c.UserContext(), userID)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to count instances")
	}
	if count >= ctl.maxPerUser {
		return router.ResponseBadRequest(c, fmt.Sprintf("Instance limit reached (%d per user)", ctl.maxPerUser))
	}

	inst := &model.Instance{
		ID:                uuid.NewString(),
		UserID:            userID,
		Name:              req.Name,
		PhoneNumberID:     req.PhoneNumberID,
		AccessToken:       req.AccessToken,
		BusinessAccountID: req.BusinessAccountID,
		RejectCalls:       req.RejectCalls,
		Status:            model.InstanceDisconnected,
	}

	if err := ctl.client.VerifyConnection(c.UserContext(), credentials(inst)); err != nil {
		log.Print(c).WithError(err).Warn("Instance provisioned but connection check failed")
	} else {
		inst.Status = model.InstanceConnected
	}

	if err := ctl.store.CreateInstance(c.UserContext(), inst); err != nil {
		log.Print(c).WithError(err).Error("Failed to create instance")
		return router.ResponseInternalError(c, "Failed to create instance")
	}

	ctl.sessions.Put(inst.ID, credentials(inst))
	return router.ResponseCreatedWithData(c, "Instance created", inst)
}

func (ctl *Controller) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	instances, err := ctl.store.ListInstancesByUser(c.UserContext(), userID)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to list instances")
	}
	return router.ResponseSuccessWithData(c, "Success get instances", instances)
}

func (ctl *Controller) Get(c *fiber.Ctx) error {
	inst, err := ctl.owned(c)
	if err != nil {
		return router.ResponseNotFound(c, "Instance not found")
	}
	return router.ResponseSuccessWithData(c, "Success get instance", inst)
}

// Delete cascades to the instance's campaigns, messages and contacts.
func (ctl *Controller) Delete(c *fiber.Ctx) error {
	inst, err := ctl.owned(c)
	if err != nil {
		return router.ResponseNotFound(c, "Instance not found")
	}

	if err := ctl.store.DeleteInstance(c.UserContext(), inst.ID); err != nil {
		return router.ResponseInternalError(c, "Failed to delete instance")
	}
	ctl.sessions.Invalidate(inst.ID)
	return router.ResponseSuccess(c, "Instance deleted")
}

// Verify re-checks the live connection, syncs the stored status and emits a
// connection event when the status changed.
func (ctl *Controller) Verify(c *fiber.Ctx) error {
	inst, err := ctl.owned(c)
	if err != nil {
		return router.ResponseNotFound(c, "Instance not found")
	}

	status := model.InstanceConnected
	if err := ctl.client.VerifyConnection(c.UserContext(), credentials(inst)); err != nil {
		log.Print(c).WithError(err).Warn("Connection verification failed")
		status = model.InstanceDisconnected
		ctl.sessions.Invalidate(inst.ID)
	}

	if status != inst.Status {
		if err := ctl.store.UpdateInstanceStatus(c.UserContext(), inst.ID, status); err != nil {
			return router.ResponseInternalError(c, "Failed to update instance status")
		}
		ctl.bus.Publish(events.EventConnection, inst.ID, map[string]interface{}{"status": status})
	}

	return router.ResponseSuccessWithData(c, "Success verify instance", fiber.Map{"status": status})
}

func (ctl *Controller) UpdateWebhook(c *fiber.Ctx) error {
	inst, err := ctl.owned(c)
	if err != nil {
		return router.ResponseNotFound(c, "Instance not found")
	}

	var req types.RequestUpdateWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if req.URL != "" {
		if err := validation.ValidateURL(req.URL); err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
	}

	if err := ctl.store.UpdateInstanceWebhook(c.UserContext(), inst.ID, req.URL, req.Events); err != nil {
		return router.ResponseInternalError(c, "Failed to update webhook configuration")
	}
	return router.ResponseSuccess(c, "Webhook configuration updated")
}

// UpdateCredentials rotates the provider credentials and invalidates the
// session cache so no stale token is reused.
func (ctl *Controller) UpdateCredentials(c *fiber.Ctx) error {
	inst, err := ctl.owned(c)
	if err != nil {
		return router.ResponseNotFound(c, "Instance not found")
	}

	var req types.RequestUpdateCredentials
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if req.AccessToken == "" {
		return router.ResponseBadRequest(c, "access_token is required")
	}

	if err := ctl.store.UpdateInstanceCredentials(c.UserContext(), inst.ID, req.AccessToken, req.BusinessAccountID); err != nil {
		return router.ResponseInternalError(c, "Failed to update credentials")
	}
	ctl.sessions.Invalidate(inst.ID)
	return router.ResponseSuccess(c, "Credentials updated")
}

// NotSupported answers socket-era operations (labels, blocking, group
// administration) that have no Cloud API equivalent.
func (ctl *Controller) NotSupported(c *fiber.Ctx) error {
	return router.ResponseBadRequest(c, "Operation not supported by the Cloud API")
}
