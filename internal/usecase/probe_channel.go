package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
)

var ErrUnknownChannel = errors.New("unknown channel")

// SampleLead is the synthetic lead used to probe a channel. It is never stored.
func SampleLead(now time.Time) entity.Lead {
	return entity.Lead{
		ID:             "probe-" + now.UTC().Format("20060102T150405"),
		FullName:       "Test Lead",
		Phone:          "+1 (555) 010-0000",
		Email:          "test.lead@example.com",
		PreferredClass: "Trial Class",
		CreatedAt:      now.UTC(),
	}
}

// Probe sends a sample lead on one channel and reports the raw sender result. Nothing is persisted.
func (uc *DispatchLeadUseCase) Probe(ctx context.Context, channel entity.Channel) (SendResult, error) {
	if !channel.Valid() {
		return SendResult{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	result := uc.send(ctx, channel, SampleLead(time.Now()))
	log.Printf("[PROBE] %s success=%t %s", channel, result.Success, result.Error)
	return result, nil
}
