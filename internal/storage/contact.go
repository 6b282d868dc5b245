package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

// UpsertContact creates the contact on first inbound message and refreshes the
// display name when the provider-reported one changed. Always bumps
// last_active_at.
func (s *Store) UpsertContact(ctx context.Context, instanceID string, waID string, displayName string) (*model.Contact, error) {
	var contact model.Contact
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO wa_contacts (id, instance_id, wa_id, display_name, last_active_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (instance_id, wa_id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE wa_contacts.display_name END,
			last_active_at = CURRENT_TIMESTAMP
		RETURNING id, instance_id, wa_id, display_name, profile_pic, last_active_at, created_at
	`, uuid.NewString(), instanceID, waID, displayName).Scan(
		&contact.ID, &contact.InstanceID, &contact.WaID, &contact.DisplayName,
		&contact.ProfilePic, &contact.LastActiveAt, &contact.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// InsertInboundMessage persists a provider-delivered message exactly once per
// provider message id. A duplicate returns model.ErrDuplicateMessage so the
// caller can skip downstream event emission.
func (s *Store) InsertInboundMessage(ctx context.Context, msg *model.InboundMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wa_inbound_messages (id, instance_id, contact_id, provider_message_id, sender, message_type, body, media_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.InstanceID, msg.ContactID, msg.ProviderMessageID, msg.From, msg.Type, msg.Body, msg.MediaID, msg.ReceivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ErrDuplicateMessage
		}
		return err
	}
	return nil
}
