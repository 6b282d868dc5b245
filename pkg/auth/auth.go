package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"
)

// AdminSecretKey for admin API endpoints (/admin/*)
var AdminSecretKey string

func init() {
	AdminSecretKey = env.MustGetEnvString("ADMIN_SECRET")
}

// AdminAuth guards admin routes with the X-Admin-Secret header.
func AdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := strings.TrimSpace(c.Get("X-Admin-Secret"))
		if secret == "" {
			return router.ResponseUnauthorized(c, "X-Admin-Secret header is required")
		}
		if subtle.ConstantTimeCompare([]byte(secret), []byte(AdminSecretKey)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}
		return c.Next()
	}
}

// UserAuth validates the JWT bearer token and stores user_id in request locals.
func UserAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := strings.TrimSpace(c.Get("Authorization"))
		if header == "" {
			return router.ResponseAuthenticate(c)
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return router.ResponseUnauthorized(c, "Authorization header must be a Bearer token")
		}

		claims, err := ValidateUserToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid or expired token")
		}

		c.Locals("user_id", claims.UserID)
		return c.Next()
	}
}
