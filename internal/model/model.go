package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateMessage = errors.New("inbound message already ingested")
)

// Instance connection status
const (
	InstanceDisconnected = "DISCONNECTED"
	InstanceConnecting   = "CONNECTING"
	InstanceConnected    = "CONNECTED"
	InstanceBanned       = "BANNED"
)

// Campaign status
const (
	CampaignPending   = "PENDING"
	CampaignRunning   = "RUNNING"
	CampaignPaused    = "PAUSED"
	CampaignCompleted = "COMPLETED"
	CampaignCancelled = "CANCELLED"
)

// Outbound message status
const (
	MessagePending   = "PENDING"
	MessageSent      = "SENT"
	MessageDelivered = "DELIVERED"
	MessageRead      = "READ"
	MessageFailed    = "FAILED"
)

// Instance is one WhatsApp Business endpoint owned by a user.
type Instance struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Name              string     `json:"name"`
	PhoneNumberID     string     `json:"phone_number_id"`
	AccessToken       string     `json:"-"`
	BusinessAccountID string     `json:"business_account_id"`
	Status            string     `json:"status"`
	WebhookURL        string     `json:"webhook_url,omitempty"`
	WebhookEvents     []string   `json:"webhook_events,omitempty"`
	RejectCalls       bool       `json:"reject_calls"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// Campaign is a unit of bulk send work belonging to one instance.
// TotalMessages is fixed at creation; sent/failed counters only grow while RUNNING.
type Campaign struct {
	ID             string     `json:"id"`
	InstanceID     string     `json:"instance_id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	DelayMs        int        `json:"delay_ms"`
	TotalMessages  int        `json:"total_messages"`
	SentMessages   int        `json:"sent_messages"`
	FailedMessages int        `json:"failed_messages"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// OutboundMessage is one recipient row within a campaign, or a standalone send
// when CampaignID is empty.
type OutboundMessage struct {
	ID                string     `json:"id"`
	CampaignID        string     `json:"campaign_id,omitempty"`
	InstanceID        string     `json:"instance_id"`
	To                string     `json:"to"`
	Body              string     `json:"body"`
	MediaURL          string     `json:"media_url,omitempty"`
	MediaType         string     `json:"media_type,omitempty"`
	Status            string     `json:"status"`
	ErrorText         string     `json:"error,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Contact is a normalized remote party, unique per (instance, wa id).
type Contact struct {
	ID           string    `json:"id"`
	InstanceID   string    `json:"instance_id"`
	WaID         string    `json:"wa_id"`
	DisplayName  string    `json:"display_name"`
	ProfilePic   string    `json:"profile_pic,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// InboundMessage is a persisted provider-delivered message. ProviderMessageID
// is the idempotency key for at-least-once webhook delivery.
type InboundMessage struct {
	ID                string    `json:"id"`
	InstanceID        string    `json:"instance_id"`
	ContactID         string    `json:"contact_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	From              string    `json:"from"`
	Type              string    `json:"type"`
	Body              string    `json:"body,omitempty"`
	MediaID           string    `json:"media_id,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

// WebhookEvent is the ephemeral unit consumed by the relay and the broadcaster.
type WebhookEvent struct {
	Event      string                 `json:"event"`
	InstanceID string                 `json:"instanceId"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data"`
}
