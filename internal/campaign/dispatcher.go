package campaign

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
)

var (
	ErrNotPending           = errors.New("Campaign has already been started")
	ErrNotRunning           = errors.New("Campaign is not running")
	ErrNotPaused            = errors.New("Campaign is not paused")
	ErrTerminal             = errors.New("Campaign is already completed or cancelled")
	ErrInstanceNotConnected = errors.New("Instance is not connected")
)

// Store is the slice of the durable store the dispatcher needs. Campaign
// status read through here is the single source of truth; control operations
// write it concurrently from request handlers.
type Store interface {
	GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error)
	GetInstance(ctx context.Context, instanceID string) (*model.Instance, error)
	NextPendingMessage(ctx context.Context, campaignID string) (*model.OutboundMessage, error)
	MarkMessageSent(ctx context.Context, messageID string, providerMessageID string) error
	MarkMessageFailed(ctx context.Context, messageID string, errorText string) error
	IncrementCampaignSent(ctx context.Context, campaignID string) error
	IncrementCampaignFailed(ctx context.Context, campaignID string) error
	TransitionCampaign(ctx context.Context, campaignID string, from string, to string) (bool, error)
	SetCampaignStatus(ctx context.Context, campaignID string, status string) error
}

// Sender is the gateway client surface used by the send loop.
type Sender interface {
	SendText(ctx context.Context, creds cloudapi.Credentials, to string, body string) (string, error)
	SendMedia(ctx context.Context, creds cloudapi.Credentials, to string, mediaURL string, kind string, caption string) (string, error)
}

// Dispatcher drives campaign send loops. At most one loop runs per campaign id
// in this process; the running set is process-local, so a multi-replica
// deployment needs an external lease instead.
type Dispatcher struct {
	store  Store
	sender Sender
	bus    *events.Bus

	mu      sync.Mutex
	running map[string]struct{}

	sleep func(time.Duration)
}

func NewDispatcher(store Store, sender Sender, bus *events.Bus) *Dispatcher {
	return &Dispatcher{
		store:   store,
		sender:  sender,
		bus:     bus,
		running: make(map[string]struct{}),
		sleep:   time.Sleep,
	}
}

func (d *Dispatcher) tryAcquire(campaignID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, active := d.running[campaignID]; active {
		return false
	}
	d.running[campaignID] = struct{}{}
	return true
}

func (d *Dispatcher) release(campaignID string) {
	d.mu.Lock()
	delete(d.running, campaignID)
	d.mu.Unlock()
}

// IsRunning reports whether a send loop is active for the campaign.
func (d *Dispatcher) IsRunning(campaignID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, active := d.running[campaignID]
	return active
}

// Start transitions PENDING -> RUNNING and launches the send loop. The owning
// instance must report connected at the moment of invocation.
func (d *Dispatcher) Start(ctx context.Context, campaignID string) error {
	cmp, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if cmp.Status != model.CampaignPending {
		return ErrNotPending
	}

	inst, err := d.store.GetInstance(ctx, cmp.InstanceID)
	if err != nil {
		return err
	}
	if inst.Status != model.InstanceConnected {
		return ErrInstanceNotConnected
	}

	ok, err := d.store.TransitionCampaign(ctx, campaignID, model.CampaignPending, model.CampaignRunning)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}

	d.emitCampaignStatus(cmp.InstanceID, campaignID, model.CampaignRunning)
	go d.Run(campaignID)
	return nil
}

// Pause transitions RUNNING -> PAUSED. The loop observes the change at its
// next status check, up to one delay interval later.
func (d *Dispatcher) Pause(ctx context.Context, campaignID string) error {
	ok, err := d.store.TransitionCampaign(ctx, campaignID, model.CampaignRunning, model.CampaignPaused)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := d.store.GetCampaign(ctx, campaignID); err != nil {
			return err
		}
		return ErrNotRunning
	}

	cmp, err := d.store.GetCampaign(ctx, campaignID)
	if err == nil {
		d.emitCampaignStatus(cmp.InstanceID, campaignID, model.CampaignPaused)
	}
	return nil
}

// Resume transitions PAUSED -> RUNNING and re-invokes the loop.
func (d *Dispatcher) Resume(ctx context.Context, campaignID string) error {
	ok, err := d.store.TransitionCampaign(ctx, campaignID, model.CampaignPaused, model.CampaignRunning)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := d.store.GetCampaign(ctx, campaignID); err != nil {
			return err
		}
		return ErrNotPaused
	}

	cmp, err := d.store.GetCampaign(ctx, campaignID)
	if err == nil {
		d.emitCampaignStatus(cmp.InstanceID, campaignID, model.CampaignRunning)
	}
	go d.Run(campaignID)
	return nil
}

// Cancel moves any non-terminal campaign to CANCELLED. Remaining PENDING
// messages stay PENDING; the loop exits at its next status check. The guarded
// transition can lose a race with the loop itself (RUNNING -> PAUSED on
// disconnect), so a failed attempt re-reads and retries once before giving up.
func (d *Dispatcher) Cancel(ctx context.Context, campaignID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		cmp, err := d.store.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if cmp.Status == model.CampaignCompleted || cmp.Status == model.CampaignCancelled {
			return ErrTerminal
		}

		ok, err := d.store.TransitionCampaign(ctx, campaignID, cmp.Status, model.CampaignCancelled)
		if err != nil {
			return err
		}
		if ok {
			d.emitCampaignStatus(cmp.InstanceID, campaignID, model.CampaignCancelled)
			return nil
		}
	}
	return ErrTerminal
}

// Run executes the send loop until a terminal condition. A second invocation
// for an already-running campaign id is a no-op, which makes duplicate
// start/resume triggers harmless.
func (d *Dispatcher) Run(campaignID string) {
	if !d.tryAcquire(campaignID) {
		return
	}
	defer d.release(campaignID)

	ctx := context.Background()
	logger := log.Campaign(campaignID)

	for {
		// Status may have been changed by a concurrent control request;
		// always reload before doing work.
		cmp, err := d.store.GetCampaign(ctx, campaignID)
		if err != nil {
			logger.WithError(err).Error("Failed to reload campaign, stopping loop")
			return
		}
		if cmp.Status != model.CampaignRunning {
			logger.WithField("status", cmp.Status).Info("Campaign no longer running, stopping loop")
			return
		}

		inst, err := d.store.GetInstance(ctx, cmp.InstanceID)
		if err != nil {
			logger.WithError(err).Error("Failed to load instance, stopping loop")
			return
		}
		if inst.Status != model.InstanceConnected {
			// Recoverable: reconnect and resume to continue.
			if err := d.store.SetCampaignStatus(ctx, campaignID, model.CampaignPaused); err != nil {
				logger.WithError(err).Error("Failed to pause campaign after disconnect")
			}
			d.emitCampaignStatus(cmp.InstanceID, campaignID, model.CampaignPaused)
			logger.Info("Instance disconnected, campaign paused")
			return
		}

		msg, err := d.store.NextPendingMessage(ctx, campaignID)
		if errors.Is(err, model.ErrNotFound) {
			if err := d.store.SetCampaignStatus(ctx, campaignID, model.CampaignCompleted); err != nil {
				logger.WithError(err).Error("Failed to mark campaign completed")
			}
			d.emitCampaignStatus(cmp.InstanceID, campaignID, model.CampaignCompleted)
			logger.Info("Campaign completed")
			return
		}
		if err != nil {
			logger.WithError(err).Error("Failed to select next message, stopping loop")
			return
		}

		d.sendOne(ctx, inst, cmp, msg)

		// Pacing delay, the primary backpressure against provider limits.
		d.sleep(time.Duration(cmp.DelayMs) * time.Millisecond)
	}
}

// sendOne attempts delivery of a single message. A failed message is recorded
// and never aborts the loop.
func (d *Dispatcher) sendOne(ctx context.Context, inst *model.Instance, cmp *model.Campaign, msg *model.OutboundMessage) {
	creds := cloudapi.Credentials{
		PhoneNumberID:     inst.PhoneNumberID,
		AccessToken:       inst.AccessToken,
		BusinessAccountID: inst.BusinessAccountID,
	}

	var providerMessageID string
	var err error
	if msg.MediaURL != "" {
		providerMessageID, err = d.sender.SendMedia(ctx, creds, msg.To, msg.MediaURL, msg.MediaType, msg.Body)
	} else {
		providerMessageID, err = d.sender.SendText(ctx, creds, msg.To, msg.Body)
	}

	logger := log.Campaign(cmp.ID).WithField("message_id", msg.ID)
	if err != nil {
		if markErr := d.store.MarkMessageFailed(ctx, msg.ID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("Failed to record message failure")
		}
		if incErr := d.store.IncrementCampaignFailed(ctx, cmp.ID); incErr != nil {
			logger.WithError(incErr).Error("Failed to increment failed counter")
		}
		logger.WithError(err).Warn("Message send failed")
		d.emitMessageStatus(inst.ID, cmp.ID, msg.ID, model.MessageFailed, err.Error())
		return
	}

	if markErr := d.store.MarkMessageSent(ctx, msg.ID, providerMessageID); markErr != nil {
		logger.WithError(markErr).Error("Failed to record message sent")
	}
	if incErr := d.store.IncrementCampaignSent(ctx, cmp.ID); incErr != nil {
		logger.WithError(incErr).Error("Failed to increment sent counter")
	}
	d.emitMessageStatus(inst.ID, cmp.ID, msg.ID, model.MessageSent, "")
}

func (d *Dispatcher) emitCampaignStatus(instanceID string, campaignID string, status string) {
	d.bus.Publish(events.EventCampaignStatus, instanceID, map[string]interface{}{
		"campaign_id": campaignID,
		"status":      status,
	})
}

func (d *Dispatcher) emitMessageStatus(instanceID string, campaignID string, messageID string, status string, errorText string) {
	data := map[string]interface{}{
		"campaign_id": campaignID,
		"message_id":  messageID,
		"status":      status,
	}
	if errorText != "" {
		data["error"] = errorText
	}
	d.bus.Publish(events.EventMessageStatus, instanceID, data)
}
