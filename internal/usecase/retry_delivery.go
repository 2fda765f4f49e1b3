package usecase

import (
	"context"
	"errors"
	"log"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// OrphanedLeadError is recorded on a delivery whose lead no longer exists.
const OrphanedLeadError = "inquiry not found"

// RecordOrphan marks a delivery whose lead is gone. The row stays FAILED, so it remains retryable.
func (uc *DispatchLeadUseCase) RecordOrphan(ctx context.Context, d entity.Delivery) error {
	unlock := uc.locks.Lock(d.ID)
	defer unlock()

	msg := OrphanedLeadError
	err := uc.Store.UpdateDeliveryStatus(ctx, d.ID, entity.StatusFailed, &msg)
	if errors.Is(err, entity.ErrTerminalState) {
		return nil
	}
	if err == nil {
		log.Printf("[DISPATCH] ⚠️ %s %s points at missing lead %s", d.Channel, d.ID, d.LeadID)
	}
	return err
}

// RetryDeliveryUseCase is the operator-triggered retry of a single delivery.
type RetryDeliveryUseCase struct {
	Store       LeadStore
	Dispatcher  *DispatchLeadUseCase
	MaxAttempts int
}

func NewRetryDeliveryUseCase(store LeadStore, dispatcher *DispatchLeadUseCase, maxAttempts int) *RetryDeliveryUseCase {
	if maxAttempts <= 0 {
		maxAttempts = entity.DefaultMaxAttempts
	}
	return &RetryDeliveryUseCase{
		Store:       store,
		Dispatcher:  dispatcher,
		MaxAttempts: maxAttempts,
	}
}

func (uc *RetryDeliveryUseCase) Execute(ctx context.Context, deliveryID string) (Outcome, error) {
	d, err := uc.Store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return Outcome{}, err
	}

	if d.Status == entity.StatusSuccess {
		return Outcome{}, ErrAlreadySucceeded
	}
	if d.Status == entity.StatusGaveUp || d.Attempts >= uc.MaxAttempts {
		return Outcome{}, ErrMaxAttemptsReached
	}

	lead, err := uc.Store.GetLead(ctx, d.LeadID)
	if errors.Is(err, entity.ErrLeadNotFound) {
		if markErr := uc.Dispatcher.RecordOrphan(ctx, *d); markErr != nil {
			return Outcome{}, errors.Join(err, markErr)
		}
		return Outcome{}, err
	}
	if err != nil {
		return Outcome{}, err
	}

	log.Printf("[RETRY] manual retry of %s %s (attempts=%d)", d.Channel, d.ID, d.Attempts)
	return uc.Dispatcher.AttemptOne(ctx, *d, *lead)
}
