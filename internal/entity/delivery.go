package entity

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelEmail        Channel = "EMAIL"
	ChannelCRMWebhook   Channel = "CRM_WEBHOOK"
	ChannelStaffMessage Channel = "STAFF_MESSAGE"
)

// AllChannels returns every destination a lead is delivered to, in a stable order.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelCRMWebhook, ChannelStaffMessage}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelCRMWebhook, ChannelStaffMessage:
		return true
	}
	return false
}

func (c Channel) String() string { return string(c) }

type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "PENDING"
	StatusSuccess DeliveryStatus = "SUCCESS"
	StatusFailed  DeliveryStatus = "FAILED"
	StatusGaveUp  DeliveryStatus = "GAVE_UP"
)

// AllStatuses lists the delivery states in lifecycle order.
func AllStatuses() []DeliveryStatus {
	return []DeliveryStatus{StatusPending, StatusSuccess, StatusFailed, StatusGaveUp}
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusGaveUp:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusGaveUp
}

func (s DeliveryStatus) String() string { return string(s) }

// DefaultMaxAttempts is the number of failed attempts after which a delivery gives up.
const DefaultMaxAttempts = 3

// Delivery tracks one lead on one channel.
type Delivery struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"`
	Channel   Channel        `json:"channel"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError *string        `json:"last_error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewDelivery returns a PENDING delivery with zero attempts.
func NewDelivery(leadID string, channel Channel, now time.Time) Delivery {
	return Delivery{
		ID:        uuid.New().String(),
		LeadID:    leadID,
		Channel:   channel,
		Status:    StatusPending,
		Attempts:  0,
		UpdatedAt: now.UTC(),
	}
}

// NextStatusAfterFailure is the state a delivery moves to once attempts reaches the given value.
func NextStatusAfterFailure(attempts, maxAttempts int) DeliveryStatus {
	if attempts >= maxAttempts {
		return StatusGaveUp
	}
	return StatusFailed
}
