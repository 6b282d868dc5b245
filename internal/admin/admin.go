package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/storage"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/types"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/auth"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
)

type Controller struct {
	store *storage.Store
}

func NewController(store *storage.Store) *Controller {
	return &Controller{store: store}
}

func (ctl *Controller) GetStats(c *fiber.Ctx) error {
	stats, err := ctl.store.Stats(c.UserContext())
	if err != nil {
		log.Print(c).WithError(err).Error("Failed to collect stats")
		return router.ResponseInternalError(c, "Failed to collect stats")
	}
	return router.ResponseSuccessWithData(c, "Success get stats", stats)
}

func (ctl *Controller) GetHealth(c *fiber.Ctx) error {
	if err := ctl.store.Ping(c.UserContext()); err != nil {
		return router.ResponseInternalError(c, "Database unreachable")
	}
	return router.ResponseSuccessWithData(c, "Healthy", fiber.Map{"database": "ok"})
}

// MintToken issues a user JWT. Token exchange with the identity provider is
// out of scope; this is the admin-side escape hatch.
func (ctl *Controller) MintToken(c *fiber.Ctx) error {
	var req types.RequestMintToken
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if req.UserID == "" {
		return router.ResponseBadRequest(c, "user_id is required")
	}

	token, err := auth.GenerateUserToken(req.UserID)
	if err != nil {
		log.Print(c).WithError(err).Error("Failed to generate token")
		return router.ResponseInternalError(c, "Failed to generate token")
	}
	return router.ResponseCreatedWithData(c, "Token created", fiber.Map{"token": token})
}
