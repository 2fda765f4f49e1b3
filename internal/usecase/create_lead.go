package usecase

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
)

type CreateLeadInput struct {
	FullName       string `json:"fullName"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	PreferredClass string `json:"preferredClass"`
}

type CreateLeadOutput struct {
	LeadID     string    `json:"leadId"`
	Deliveries []Outcome `json:"deliveries"`
}

// CreateLeadUseCase is the intake path: persist the lead with its deliveries, then dispatch once.
type CreateLeadUseCase struct {
	Store      LeadStore
	Dispatcher *DispatchLeadUseCase
	Channels   []entity.Channel
	Now        func() time.Time
}

func NewCreateLeadUseCase(store LeadStore, dispatcher *DispatchLeadUseCase) *CreateLeadUseCase {
	return &CreateLeadUseCase{
		Store:      store,
		Dispatcher: dispatcher,
		Channels:   entity.AllChannels(),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *CreateLeadUseCase) Execute(ctx context.Context, input CreateLeadInput) (*CreateLeadOutput, error) {
	if validationErrors := ValidateCreateLeadInput(input); len(validationErrors) > 0 {
		parts := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			parts = append(parts, e.Field+" ("+e.Message+")")
		}
		return nil, &DomainError{
			Code:    "VALIDATION_ERROR",
			Message: "validation failed: " + strings.Join(parts, ", "),
			Fields:  validationErrors,
		}
	}

	lead := entity.NewLead(
		strings.TrimSpace(input.FullName),
		strings.TrimSpace(input.Phone),
		strings.TrimSpace(input.Email),
		strings.TrimSpace(input.PreferredClass),
		uc.Now(),
	)

	if _, err := uc.Store.CreateLeadWithDeliveries(ctx, lead, uc.Channels); err != nil {
		log.Printf("[INTAKE] ❌ failed to store lead: %v", err)
		return nil, &TechnicalError{
			Code:    "DATABASE_ERROR",
			Message: "could not store lead",
			Err:     err,
		}
	}
	log.Printf("[INTAKE] lead %s stored with %d deliveries", lead.ID, len(uc.Channels))

	// The lead is committed, so a client that hangs up must not abort its first attempts.
	// Each send is still bounded by the dispatcher's SendTimeout.
	outcomes, err := uc.Dispatcher.DispatchAll(context.WithoutCancel(ctx), lead.ID)
	if err != nil {
		// a delivery left PENDING is picked up by the retry sweep after its grace period
		log.Printf("[INTAKE] ⚠️ dispatch for lead %s incomplete: %v", lead.ID, err)
	}

	return &CreateLeadOutput{
		LeadID:     lead.ID,
		Deliveries: outcomes,
	}, nil
}
