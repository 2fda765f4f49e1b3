package usecase

import (
	"context"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// LeadStore is the record store the dispatch and retry paths operate on.
type LeadStore interface {
	CreateLeadWithDeliveries(ctx context.Context, lead *entity.Lead, channels []entity.Channel) ([]entity.Delivery, error)
	GetLead(ctx context.Context, id string) (*entity.Lead, error)
	GetDelivery(ctx context.Context, id string) (*entity.Delivery, error)
	ListDeliveriesByStatus(ctx context.Context, status entity.DeliveryStatus) ([]entity.Delivery, error)
	ListDeliveriesByLead(ctx context.Context, leadID string) ([]entity.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, id string, status entity.DeliveryStatus, lastErr *string) error
	IncrementAttempts(ctx context.Context, id string, expectedAttempts int, lastErr string) (*entity.Delivery, error)
	CountByStatus(ctx context.Context) (map[entity.DeliveryStatus]int, error)
}

// SendResult is what a channel reports back. Transport failures live in Error, never in a Go error.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func Sent() SendResult { return SendResult{Success: true} }

func Failed(msg string) SendResult { return SendResult{Success: false, Error: msg} }

// ChannelSender delivers a lead to one destination.
type ChannelSender interface {
	Send(ctx context.Context, lead entity.Lead) SendResult
}

// SenderFunc adapts a plain function to ChannelSender.
type SenderFunc func(ctx context.Context, lead entity.Lead) SendResult

func (f SenderFunc) Send(ctx context.Context, lead entity.Lead) SendResult {
	return f(ctx, lead)
}
