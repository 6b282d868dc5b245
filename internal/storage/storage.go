package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zerohop/go-whatsapp-campaign-gateway/pkg/env"
)

// Store is the durable source of truth for instances, campaigns, messages and
// contacts. Campaign status in particular must always be re-read from here,
// never trusted from memory.
type Store struct {
	db *sql.DB
}

func Open() (*Store, error) {
	dsn := env.MustGetEnvString("DATABASE_URL")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS wa_instances (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			phone_number_id TEXT NOT NULL,
			access_token TEXT NOT NULL,
			business_account_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'DISCONNECTED',
			webhook_url TEXT NOT NULL DEFAULT '',
			webhook_events TEXT[] NOT NULL DEFAULT '{}',
			reject_calls BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wa_instances_phone_number ON wa_instances (phone_number_id)`,
		`CREATE TABLE IF NOT EXISTS wa_campaigns (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL REFERENCES wa_instances (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			delay_ms INTEGER NOT NULL,
			total_messages INTEGER NOT NULL DEFAULT 0,
			sent_messages INTEGER NOT NULL DEFAULT 0,
			failed_messages INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS wa_outbound_messages (
			id TEXT PRIMARY KEY,
			campaign_id TEXT REFERENCES wa_campaigns (id) ON DELETE CASCADE,
			instance_id TEXT NOT NULL REFERENCES wa_instances (id) ON DELETE CASCADE,
			recipient TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'PENDING',
			error_text TEXT NOT NULL DEFAULT '',
			provider_message_id TEXT NOT NULL DEFAULT '',
			sent_at TIMESTAMPTZ,
			delivered_at TIMESTAMPTZ,
			read_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wa_outbound_pending ON wa_outbound_messages (campaign_id, created_at) WHERE status = 'PENDING'`,
		`CREATE INDEX IF NOT EXISTS idx_wa_outbound_provider ON wa_outbound_messages (provider_message_id)`,
		`CREATE TABLE IF NOT EXISTS wa_contacts (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL REFERENCES wa_instances (id) ON DELETE CASCADE,
			wa_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			profile_pic TEXT NOT NULL DEFAULT '',
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (instance_id, wa_id)
		)`,
		`CREATE TABLE IF NOT EXISTS wa_inbound_messages (
			id TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL REFERENCES wa_instances (id) ON DELETE CASCADE,
			contact_id TEXT NOT NULL REFERENCES wa_contacts (id),
			provider_message_id TEXT NOT NULL UNIQUE,
			sender TEXT NOT NULL,
			message_type TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			media_id TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
