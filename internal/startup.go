package internal

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
)

// Startup reconciles stored state with reality after a restart: every
// instance gets its connection re-verified against the Cloud API, and
// campaigns left RUNNING by a crash get their send loops re-entered.
func (a *App) Startup() {
	log.Print(nil).Info("Running Startup Tasks")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a.verifyInstances(ctx)
	a.resumeCampaigns(ctx)
}

func (a *App) verifyInstances(ctx context.Context) {
	instances, err := a.Store.ListInstances(ctx)
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to load instances from store")
		return
	}

	concurrency := env.GetEnvIntOrDefault("STARTUP_VERIFY_CONCURRENCY", 10)

	var verified, connected, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			atomic.AddInt64(&verified, 1)

			creds := cloudapi.Credentials{
				PhoneNumberID:     inst.PhoneNumberID,
				AccessToken:       inst.AccessToken,
				BusinessAccountID: inst.BusinessAccountID,
			}
			status := model.InstanceConnected
			if err := a.Client.VerifyConnection(gctx, creds); err != nil {
				status = model.InstanceDisconnected
				atomic.AddInt64(&failed, 1)
				log.Instance(inst.ID).WithError(err).Warn("Connection verification failed")
			} else {
				atomic.AddInt64(&connected, 1)
			}

			if status != inst.Status {
				if err := a.Store.UpdateInstanceStatus(gctx, inst.ID, status); err != nil {
					log.Instance(inst.ID).WithError(err).Error("Failed to sync instance status")
					return nil
				}
				a.Bus.Publish(events.EventConnection, inst.ID, map[string]interface{}{
					"status": status,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Print(nil).
		WithField("verified", verified).
		WithField("connected", connected).
		WithField("failed", failed).
		WithField("concurrency", concurrency).
		Info("Startup verification pass complete")
}

// resumeCampaigns re-enters the send loop for campaigns that were RUNNING
// when the previous process died. Messages already SENT stay SENT, so the
// loop picks up at the first remaining PENDING message.
func (a *App) resumeCampaigns(ctx context.Context) {
	campaigns, err := a.Store.ListRunningCampaigns(ctx)
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to load running campaigns from store")
		return
	}

	for _, cmp := range campaigns {
		log.Campaign(cmp.ID).Info("Re-entering send loop after restart")
		go a.Dispatcher.Run(cmp.ID)
	}

	if len(campaigns) > 0 {
		log.Print(nil).WithField("count", len(campaigns)).Info("Resumed running campaigns")
	}
}
