package usecase

import (
	"context"

	"github.com/xavierca1/lead-relay/internal/entity"
)

type DeliveryStats struct {
	Counts map[entity.DeliveryStatus]int `json:"counts"`
	Total  int                           `json:"total"`
}

type LeadWithDeliveries struct {
	Lead       *entity.Lead      `json:"lead"`
	Deliveries []entity.Delivery `json:"deliveries"`
}

// DeliveryQueryUseCase is the read side used by operators.
type DeliveryQueryUseCase struct {
	Store LeadStore
}

func NewDeliveryQueryUseCase(store LeadStore) *DeliveryQueryUseCase {
	return &DeliveryQueryUseCase{Store: store}
}

func (uc *DeliveryQueryUseCase) Stats(ctx context.Context) (*DeliveryStats, error) {
	counts, err := uc.Store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DeliveryStats{Counts: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (uc *DeliveryQueryUseCase) Failed(ctx context.Context) ([]entity.Delivery, error) {
	return uc.Store.ListDeliveriesByStatus(ctx, entity.StatusFailed)
}

func (uc *DeliveryQueryUseCase) Delivery(ctx context.Context, id string) (*entity.Delivery, error) {
	return uc.Store.GetDelivery(ctx, id)
}

func (uc *DeliveryQueryUseCase) Lead(ctx context.Context, id string) (*LeadWithDeliveries, error) {
	lead, err := uc.Store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	deliveries, err := uc.Store.ListDeliveriesByLead(ctx, id)
	if err != nil {
		return nil, err
	}

	return &LeadWithDeliveries{Lead: lead, Deliveries: deliveries}, nil
}
