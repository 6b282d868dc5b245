package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
)

func Index(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "WhatsApp Campaign Gateway", fiber.Map{
		"service": "go-whatsapp-campaign-gateway",
	})
}
