package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

const campaignColumns = `id, instance_id, name, status, delay_ms, total_messages,
	sent_messages, failed_messages, started_at, completed_at, created_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*model.Campaign, error) {
	var cmp model.Campaign
	err := row.Scan(&cmp.ID, &cmp.InstanceID, &cmp.Name, &cmp.Status, &cmp.DelayMs,
		&cmp.TotalMessages, &cmp.SentMessages, &cmp.FailedMessages,
		&cmp.StartedAt, &cmp.CompletedAt, &cmp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &cmp, nil
}

// CreateCampaign persists the campaign and its initial message batch in one
// transaction. Total is fixed here and never changes afterwards.
func (s *Store) CreateCampaign(ctx context.Context, cmp *model.Campaign, messages []*model.OutboundMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cmp.TotalMessages = len(messages)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wa_campaigns (id, instance_id, name, status, delay_ms, total_messages)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cmp.ID, cmp.InstanceID, cmp.Name, cmp.Status, cmp.DelayMs, cmp.TotalMessages)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO wa_outbound_messages (id, campaign_id, instance_id, recipient, body, media_url, media_type, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING')
		`, msg.ID, cmp.ID, cmp.InstanceID, msg.To, msg.Body, msg.MediaURL, msg.MediaType)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM wa_campaigns WHERE id = $1`, campaignID)
	return scanCampaign(row)
}

func (s *Store) ListCampaignsByInstance(ctx context.Context, instanceID string) ([]*model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM wa_campaigns WHERE instance_id = $1 ORDER BY created_at DESC
	`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		cmp, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, cmp)
	}
	return campaigns, rows.Err()
}

// ListRunningCampaigns returns campaigns a previous process left RUNNING so
// their loops can be re-entered after a restart.
func (s *Store) ListRunningCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM wa_campaigns WHERE status = $1 ORDER BY created_at
	`, model.CampaignRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		cmp, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, cmp)
	}
	return campaigns, rows.Err()
}

// TransitionCampaign applies a guarded status transition. Returns false when
// the campaign was not in the expected from status (lost race or invalid).
func (s *Store) TransitionCampaign(ctx context.Context, campaignID string, from string, to string) (bool, error) {
	query := `UPDATE wa_campaigns SET status = $3 WHERE id = $1 AND status = $2`
	switch to {
	case model.CampaignRunning:
		query = `UPDATE wa_campaigns SET status = $3, started_at = COALESCE(started_at, CURRENT_TIMESTAMP) WHERE id = $1 AND status = $2`
	case model.CampaignCompleted, model.CampaignCancelled:
		query = `UPDATE wa_campaigns SET status = $3, completed_at = CURRENT_TIMESTAMP WHERE id = $1 AND status = $2`
	}
	result, err := s.db.ExecContext(ctx, query, campaignID, from, to)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// SetCampaignStatus is the dispatcher-side unconditional transition (pause on
// disconnect, completion).
func (s *Store) SetCampaignStatus(ctx context.Context, campaignID string, status string) error {
	query := `UPDATE wa_campaigns SET status = $2 WHERE id = $1`
	if status == model.CampaignCompleted {
		query = `UPDATE wa_campaigns SET status = $2, completed_at = CURRENT_TIMESTAMP WHERE id = $1`
	}
	result, err := s.db.ExecContext(ctx, query, campaignID, status)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) IncrementCampaignSent(ctx context.Context, campaignID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wa_campaigns SET sent_messages = sent_messages + 1 WHERE id = $1
	`, campaignID)
	return err
}

func (s *Store) IncrementCampaignFailed(ctx context.Context, campaignID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wa_campaigns SET failed_messages = failed_messages + 1 WHERE id = $1
	`, campaignID)
	return err
}

// DeleteCampaign cascades to its outbound messages.
func (s *Store) DeleteCampaign(ctx context.Context, campaignID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM wa_campaigns WHERE id = $1`, campaignID)
	if err != nil {
		return err
	}
	return requireRow(result)
}
