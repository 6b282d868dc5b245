package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/zerohop/go-whatsapp-campaign-gateway/internal/model"
)

const instanceColumns = `id, user_id, name, phone_number_id, access_token, business_account_id,
	status, webhook_url, webhook_events, reject_calls, created_at, updated_at`

func scanInstance(row interface{ Scan(...interface{}) error }) (*model.Instance, error) {
	var inst model.Instance
	var events pq.StringArray
	err := row.Scan(&inst.ID, &inst.UserID, &inst.Name, &inst.PhoneNumberID, &inst.AccessToken,
		&inst.BusinessAccountID, &inst.Status, &inst.WebhookURL, &events, &inst.RejectCalls,
		&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	inst.WebhookEvents = events
	return &inst, nil
}

func (s *Store) CreateInstance(ctx context.Context, inst *model.Instance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wa_instances (id, user_id, name, phone_number_id, access_token, business_account_id, status, reject_calls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inst.ID, inst.UserID, inst.Name, inst.PhoneNumberID, inst.AccessToken, inst.BusinessAccountID, inst.Status, inst.RejectCalls)
	return err
}

func (s *Store) GetInstance(ctx context.Context, instanceID string) (*model.Instance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM wa_instances WHERE id = $1`, instanceID)
	return scanInstance(row)
}

// GetInstanceByPhoneNumberID resolves the owning instance for an inbound
// webhook item by the provider routing identifier.
func (s *Store) GetInstanceByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Instance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM wa_instances WHERE phone_number_id = $1`, phoneNumberID)
	return scanInstance(row)
}

func (s *Store) ListInstances(ctx context.Context) ([]*model.Instance, error) {
	return s.listInstances(ctx, `SELECT `+instanceColumns+` FROM wa_instances ORDER BY created_at`)
}

func (s *Store) ListInstancesByUser(ctx context.Context, userID string) ([]*model.Instance, error) {
	return s.listInstances(ctx, `SELECT `+instanceColumns+` FROM wa_instances WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *Store) listInstances(ctx context.Context, query string, args ...interface{}) ([]*model.Instance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (s *Store) CountInstancesByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wa_instances WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

func (s *Store) UpdateInstanceStatus(ctx context.Context, instanceID string, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wa_instances SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, instanceID, status)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) UpdateInstanceWebhook(ctx context.Context, instanceID string, url string, eventNames []string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wa_instances SET webhook_url = $2, webhook_events = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, instanceID, url, pq.Array(eventNames))
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *Store) UpdateInstanceCredentials(ctx context.Context, instanceID string, accessToken string, businessAccountID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wa_instances SET access_token = $2, business_account_id = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, instanceID, accessToken, businessAccountID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteInstance cascades to campaigns, messages and contacts.
func (s *Store) DeleteInstance(ctx context.Context, instanceID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM wa_instances WHERE id = $1`, instanceID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}
