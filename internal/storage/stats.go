package storage

import (
	"context"
)

type Stats struct {
	InstancesByStatus map[string]int `json:"instances_by_status"`
	CampaignsByStatus map[string]int `json:"campaigns_by_status"`
	OutboundMessages  int            `json:"outbound_messages"`
	InboundMessages   int            `json:"inbound_messages"`
	Contacts          int            `json:"contacts"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		InstancesByStatus: make(map[string]int),
		CampaignsByStatus: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM wa_instances GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.InstancesByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM wa_campaigns GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.CampaignsByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wa_outbound_messages`).Scan(&stats.OutboundMessages); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wa_inbound_messages`).Scan(&stats.InboundMessages); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wa_contacts`).Scan(&stats.Contacts); err != nil {
		return nil, err
	}

	return stats, nil
}
