package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

const outboundColumns = `id, COALESCE(campaign_id, ''), instance_id, recipient, body, media_url, media_type,
	status, error_text, provider_message_id, sent_at, delivered_at, read_at, created_at`

func scanOutbound(row interface{ Scan(...interface{}) error }) (*model.OutboundMessage, error) {
	var msg model.OutboundMessage
	err := row.Scan(&msg.ID, &msg.CampaignID, &msg.InstanceID, &msg.To, &msg.Body,
		&msg.MediaURL, &msg.MediaType, &msg.Status, &msg.ErrorText, &msg.ProviderMessageID,
		&msg.SentAt, &msg.DeliveredAt, &msg.ReadAt, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (s *Store) InsertOutboundMessage(ctx context.Context, msg *model.OutboundMessage) error {
	var campaignID interface{}
	if msg.CampaignID != "" {
		campaignID = msg.CampaignID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wa_outbound_messages (id, campaign_id, instance_id, recipient, body, media_url, media_type, status, provider_message_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CASE WHEN $8 = 'SENT' THEN CURRENT_TIMESTAMP ELSE NULL END)
	`, msg.ID, campaignID, msg.InstanceID, msg.To, msg.Body, msg.MediaURL, msg.MediaType, msg.Status, msg.ProviderMessageID)
	return err
}

// NextPendingMessage selects the oldest PENDING message for the campaign,
// creation order breaking ties.
func (s *Store) NextPendingMessage(ctx context.Context, campaignID string) (*model.OutboundMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+outboundColumns+` FROM wa_outbound_messages
		WHERE campaign_id = $1 AND status = 'PENDING'
		ORDER BY created_at, id
		LIMIT 1
	`, campaignID)
	return scanOutbound(row)
}

func (s *Store) MarkMessageSent(ctx context.Context, messageID string, providerMessageID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wa_outbound_messages
		SET status = 'SENT', provider_message_id = $2, sent_at = CURRENT_TIMESTAMP, error_text = ''
		WHERE id = $1 AND status = 'PENDING'
	`, messageID, providerMessageID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) MarkMessageFailed(ctx context.Context, messageID string, errorText string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wa_outbound_messages
		SET status = 'FAILED', error_text = $2
		WHERE id = $1 AND status = 'PENDING'
	`, messageID, errorText)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateMessageStatusByProviderID applies a provider status update. Delivered
// and read stamp their timestamps. Returns model.ErrNotFound when no local row
// matches the provider message id.
func (s *Store) UpdateMessageStatusByProviderID(ctx context.Context, providerMessageID string, status string) error {
	// Unsent rows carry the column default ''; an empty id must never match them.
	if providerMessageID == "" {
		return model.ErrNotFound
	}
	status = strings.ToUpper(status)
	query := `UPDATE wa_outbound_messages SET status = $2 WHERE provider_message_id = $1`
	switch status {
	case model.MessageDelivered:
		query = `UPDATE wa_outbound_messages SET status = $2, delivered_at = CURRENT_TIMESTAMP WHERE provider_message_id = $1`
	case model.MessageRead:
		query = `UPDATE wa_outbound_messages SET status = $2, read_at = CURRENT_TIMESTAMP WHERE provider_message_id = $1`
	}
	result, err := s.db.ExecContext(ctx, query, providerMessageID, status)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) ListMessagesByCampaign(ctx context.Context, campaignID string) ([]*model.OutboundMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outboundColumns+` FROM wa_outbound_messages WHERE campaign_id = $1 ORDER BY created_at, id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.OutboundMessage
	for rows.Next() {
		msg, err := scanOutbound(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
