package internal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
)

// Routines registers background cron jobs. The health check keeps stored
// instance statuses in sync with what the Cloud API actually reports, so a
// revoked token surfaces without waiting for a failed send.
func (a *App) Routines(c *cron.Cron) {
	log.Print(nil).Info("Running Routine Tasks")

	if env.GetEnvBoolOrDefault("ENABLE_HEALTH_CHECK_CRON", true) {
		spec := env.GetEnvStringOrDefault("HEALTH_CHECK_CRON_SPEC", "0 */5 * * * *")
		_, err := c.AddFunc(spec, a.healthCheck)
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled; instance status only syncs on verify and send")
	}

	c.Start()
}

func (a *App) healthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	instances, err := a.Store.ListInstances(ctx)
	if err != nil {
		log.Print(nil).WithError(err).Error("Health check failed to load instances")
		return
	}

	for _, inst := range instances {
		// BANNED is set by hand and never auto-cleared.
		if inst.Status == model.InstanceBanned {
			continue
		}

		creds := cloudapi.Credentials{
			PhoneNumberID:     inst.PhoneNumberID,
			AccessToken:       inst.AccessToken,
			BusinessAccountID: inst.BusinessAccountID,
		}
		status := model.InstanceConnected
		if err := a.Client.VerifyConnection(ctx, creds); err != nil {
			status = model.InstanceDisconnected
			log.Instance(inst.ID).WithError(err).Warn("Instance unhealthy")
		}

		if status == inst.Status {
			continue
		}
		if err := a.Store.UpdateInstanceStatus(ctx, inst.ID, status); err != nil {
			log.Instance(inst.ID).WithError(err).Error("Failed to sync instance status")
			continue
		}
		a.Bus.Publish(events.EventConnection, inst.ID, map[string]interface{}{
			"status": status,
		})
	}
}
