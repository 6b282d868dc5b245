package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/auth"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/router"

	ctlIndex "github.com/zerohop/go-whatsapp-campaign-gateway/internal/index"
)

func (a *App) Routes(app *fiber.App) {
	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// ============================================================
	// ADMIN ROUTES (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()

	app.Get(router.BaseURL+"/admin/stats", adminMiddleware, a.adminCtl.GetStats)
	app.Get(router.BaseURL+"/admin/health", adminMiddleware, a.adminCtl.GetHealth)
	app.Post(router.BaseURL+"/admin/tokens", adminMiddleware, a.adminCtl.MintToken)

	// ============================================================
	// CLOUD API WEBHOOK (Meta-facing, verify-token handshake)
	// ============================================================
	app.Get(router.BaseURL+"/webhook", a.inboundCtl.Verify)
	app.Post(router.BaseURL+"/webhook", a.inboundCtl.Ingest)

	// ============================================================
	// USER OPERATIONS (JWT Bearer token authentication)
	// ============================================================
	userMiddleware := auth.UserAuth()

	// Instance management
	app.Post(router.BaseURL+"/instances", userMiddleware, a.instanceCtl.Create)
	app.Get(router.BaseURL+"/instances", userMiddleware, a.instanceCtl.List)
	app.Get(router.BaseURL+"/instances/:instance_id", userMiddleware, a.instanceCtl.Get)
	app.Delete(router.BaseURL+"/instances/:instance_id", userMiddleware, a.instanceCtl.Delete)
	app.Post(router.BaseURL+"/instances/:instance_id/verify", userMiddleware, a.instanceCtl.Verify)
	app.Put(router.BaseURL+"/instances/:instance_id/webhook", userMiddleware, a.instanceCtl.UpdateWebhook)
	app.Patch(router.BaseURL+"/instances/:instance_id/credentials", userMiddleware, a.instanceCtl.UpdateCredentials)

	// Standalone sends
	app.Post(router.BaseURL+"/instances/:instance_id/messages/text", userMiddleware, a.instanceCtl.SendText)
	app.Post(router.BaseURL+"/instances/:instance_id/messages/media", userMiddleware, a.instanceCtl.SendMedia)
	app.Post(router.BaseURL+"/instances/:instance_id/messages/template", userMiddleware, a.instanceCtl.SendTemplate)
	app.Post(router.BaseURL+"/instances/:instance_id/messages/interactive", userMiddleware, a.instanceCtl.SendInteractive)

	// Campaign lifecycle
	app.Post(router.BaseURL+"/instances/:instance_id/campaigns", userMiddleware, a.campaignCtl.Create)
	app.Get(router.BaseURL+"/instances/:instance_id/campaigns", userMiddleware, a.campaignCtl.List)
	app.Get(router.BaseURL+"/campaigns/:campaign_id", userMiddleware, a.campaignCtl.Get)
	app.Get(router.BaseURL+"/campaigns/:campaign_id/messages", userMiddleware, a.campaignCtl.Messages)
	app.Post(router.BaseURL+"/campaigns/:campaign_id/start", userMiddleware, a.campaignCtl.Start)
	app.Post(router.BaseURL+"/campaigns/:campaign_id/pause", userMiddleware, a.campaignCtl.Pause)
	app.Post(router.BaseURL+"/campaigns/:campaign_id/resume", userMiddleware, a.campaignCtl.Resume)
	app.Post(router.BaseURL+"/campaigns/:campaign_id/cancel", userMiddleware, a.campaignCtl.Cancel)
	app.Delete(router.BaseURL+"/campaigns/:campaign_id", userMiddleware, a.campaignCtl.Delete)

	// Server-sent events stream
	app.Get(router.BaseURL+"/instances/:instance_id/events", userMiddleware, a.streamCtl.Events)

	// Session-protocol surfaces the Cloud API has no equivalent for
	app.All(router.BaseURL+"/instances/:instance_id/labels*", userMiddleware, a.instanceCtl.NotSupported)
	app.All(router.BaseURL+"/instances/:instance_id/blocklist*", userMiddleware, a.instanceCtl.NotSupported)
	app.All(router.BaseURL+"/instances/:instance_id/groups*", userMiddleware, a.instanceCtl.NotSupported)
	app.All(router.BaseURL+"/instances/:instance_id/presence*", userMiddleware, a.instanceCtl.NotSupported)
}
