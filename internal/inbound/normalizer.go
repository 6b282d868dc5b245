package inbound

import (
	"context"
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/events"
	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/cloudapi"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/log"
)

// Store is the slice of the durable store the normalizer needs.
type Store interface {
	GetInstanceByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Instance, error)
	UpsertContact(ctx context.Context, instanceID string, waID string, displayName string) (*model.Contact, error)
	InsertInboundMessage(ctx context.Context, msg *model.InboundMessage) error
	UpdateMessageStatusByProviderID(ctx context.Context, providerMessageID string, status string) error
}

// MediaFetcher downloads remote media referenced by inbound messages.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, creds cloudapi.Credentials, mediaID string) ([]byte, string, error)
}

// Normalizer converts provider webhook payloads into durable domain records,
// exactly once per provider message id, and emits the derived domain events.
type Normalizer struct {
	store    Store
	media    MediaFetcher
	sessions *cloudapi.SessionCache
	bus      *events.Bus
	mediaDir string

	// detach runs media downloads off the ingestion response path.
	detach func(func())
}

func NewNormalizer(store Store, media MediaFetcher, sessions *cloudapi.SessionCache, bus *events.Bus) *Normalizer {
	return &Normalizer{
		store:    store,
		media:    media,
		sessions: sessions,
		bus:      bus,
		mediaDir: env.GetEnvStringOrDefault("MEDIA_DIR", "media"),
		detach:   func(fn func()) { go fn() },
	}
}

// Ingest processes one structurally valid webhook payload. Items are handled
// independently: a dropped or failed item never aborts its siblings, and the
// call itself never fails once parsing succeeded.
func (n *Normalizer) Ingest(ctx context.Context, payload *WebhookPayload) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			n.ingestChange(ctx, change.Value)
		}
	}
}

func (n *Normalizer) ingestChange(ctx context.Context, value ChangeValue) {
	phoneNumberID := value.Metadata.PhoneNumberID
	inst, err := n.store.GetInstanceByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		// Either way the item is dropped, never the batch; but a store outage
		// must not read like an unroutable item in the logs.
		if errors.Is(err, model.ErrNotFound) {
			log.Instance("").WithField("phone_number_id", phoneNumberID).Warn("Inbound item for unknown phone number id, dropping")
		} else {
			log.Instance("").WithField("phone_number_id", phoneNumberID).WithError(err).Error("Failed to resolve instance for inbound item, dropping")
		}
		return
	}

	names := contactNames(value.Contacts)

	for _, msg := range value.Messages {
		n.ingestMessage(ctx, inst, msg, names[msg.From])
	}
	for _, status := range value.Statuses {
		n.ingestStatus(ctx, inst, status)
	}
}

func contactNames(contacts []Contact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, contact := range contacts {
		names[contact.WaID] = contact.Profile.Name
	}
	return names
}

func (n *Normalizer) ingestMessage(ctx context.Context, inst *model.Instance, msg Message, displayName string) {
	logger := log.Instance(inst.ID).WithField("provider_message_id", msg.ID)

	contact, err := n.store.UpsertContact(ctx, inst.ID, msg.From, displayName)
	if err != nil {
		logger.WithError(err).Error("Failed to upsert contact, dropping message")
		return
	}

	record := &model.InboundMessage{
		InstanceID:        inst.ID,
		ContactID:         contact.ID,
		ProviderMessageID: msg.ID,
		From:              msg.From,
		Type:              msg.Type,
		Body:              msg.body(),
		ReceivedAt:        parseTimestamp(msg.Timestamp),
	}
	if media := msg.media(); media != nil {
		record.MediaID = media.ID
	}

	if err := n.store.InsertInboundMessage(ctx, record); err != nil {
		if errors.Is(err, model.ErrDuplicateMessage) {
			// At-least-once provider delivery becomes at-most-once domain
			// effect: no persistence, no event.
			logger.Info("Duplicate inbound message, skipping")
			return
		}
		logger.WithError(err).Error("Failed to persist inbound message")
		return
	}

	n.bus.Publish(events.EventMessage, inst.ID, map[string]interface{}{
		"provider_message_id": msg.ID,
		"from":                msg.From,
		"type":                msg.Type,
		"body":                record.Body,
		"media_id":            record.MediaID,
		"contact_id":          contact.ID,
		"contact_name":        contact.DisplayName,
	})

	if record.MediaID != "" {
		n.scheduleMediaDownload(inst, record.MediaID)
	}
}

func (n *Normalizer) ingestStatus(ctx context.Context, inst *model.Instance, status Status) {
	// An empty id cannot identify a message; matching it against the store
	// would hit every row whose provider id was never assigned.
	if status.ID == "" {
		log.Instance(inst.ID).Warn("Status update without provider message id, dropping")
		return
	}

	err := n.store.UpdateMessageStatusByProviderID(ctx, status.ID, status.Status)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		log.Instance(inst.ID).WithError(err).Error("Failed to apply status update")
	}

	// Ack is emitted whether or not a local row matched.
	n.bus.Publish(events.EventMessageAck, inst.ID, map[string]interface{}{
		"provider_message_id": status.ID,
		"status":              status.Status,
		"recipient_id":        status.RecipientID,
	})
}

// scheduleMediaDownload fetches media in the background. Ingestion has already
// acknowledged the provider; a failed download is logged and nothing else.
func (n *Normalizer) scheduleMediaDownload(inst *model.Instance, mediaID string) {
	creds, ok := n.sessions.Get(inst.ID)
	if !ok {
		creds = cloudapi.Credentials{
			PhoneNumberID:     inst.PhoneNumberID,
			AccessToken:       inst.AccessToken,
			BusinessAccountID: inst.BusinessAccountID,
		}
		n.sessions.Put(inst.ID, creds)
	}

	instanceID := inst.ID
	n.detach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		logger := log.Instance(instanceID).WithField("media_id", mediaID)

		content, mimeType, err := n.media.DownloadMedia(ctx, creds, mediaID)
		if err != nil {
			logger.WithError(err).Warn("Media download failed")
			return
		}

		if err := os.MkdirAll(n.mediaDir, 0o755); err != nil {
			logger.WithError(err).Warn("Failed to create media directory")
			return
		}

		name := mediaID
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			name += exts[0]
		}
		path := filepath.Join(n.mediaDir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			logger.WithError(err).Warn("Failed to write media file")
			return
		}
		logger.WithField("path", path).Info("Media downloaded")
	})
}

func parseTimestamp(raw string) time.Time {
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil && seconds > 0 {
		return time.Unix(seconds, 0).UTC()
	}
	return time.Now().UTC()
}
