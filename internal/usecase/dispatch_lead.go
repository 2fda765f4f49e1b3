package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xavierca1/lead-relay/internal/entity"
)

const DefaultSendTimeout = 10 * time.Second

// Reasons an attempt was skipped without calling the sender.
const (
	ReasonTerminal = "terminal"
	ReasonStale    = "stale"
	ReasonConflict = "conflict"
)

var deliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lead_deliveries_total",
		Help: "Delivery attempts by channel and result",
	},
	[]string{"channel", "result"},
)

// Outcome describes what one attempt did to one delivery.
type Outcome struct {
	DeliveryID string                `json:"deliveryId"`
	Channel    entity.Channel        `json:"channel"`
	Status     entity.DeliveryStatus `json:"status"`
	Attempts   int                   `json:"attempts"`
	Error      string                `json:"error,omitempty"`
	Skipped    bool                  `json:"skipped,omitempty"`
	Reason     string                `json:"reason,omitempty"`
}

type DispatchLeadUseCase struct {
	Store       LeadStore
	Senders     map[entity.Channel]ChannelSender
	SendTimeout time.Duration

	locks *KeyedMutex
}

func NewDispatchLeadUseCase(store LeadStore, senders map[entity.Channel]ChannelSender, sendTimeout time.Duration) *DispatchLeadUseCase {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &DispatchLeadUseCase{
		Store:       store,
		Senders:     senders,
		SendTimeout: sendTimeout,
		locks:       NewKeyedMutex(),
	}
}

// AttemptOne sends the lead on the delivery's channel and records the outcome.
//
// snapshot is the delivery as the caller last saw it. If the stored row moved on since then
// (another sweep or a manual retry already ran the attempt) nothing is sent. Terminal deliveries
// are never touched.
func (uc *DispatchLeadUseCase) AttemptOne(ctx context.Context, snapshot entity.Delivery, lead entity.Lead) (Outcome, error) {
	unlock := uc.locks.Lock(snapshot.ID)
	defer unlock()

	current, err := uc.Store.GetDelivery(ctx, snapshot.ID)
	if err != nil {
		return Outcome{}, err
	}
	if current.Status.IsTerminal() {
		return skipped(current, ReasonTerminal), nil
	}
	if current.Status != snapshot.Status || current.Attempts != snapshot.Attempts {
		return skipped(current, ReasonStale), nil
	}

	result := uc.send(ctx, current.Channel, lead)

	if result.Success {
		err := uc.Store.UpdateDeliveryStatus(ctx, current.ID, entity.StatusSuccess, nil)
		if isConflict(err) {
			return uc.conflict(ctx, current), nil
		}
		if err != nil {
			log.Printf("[DISPATCH] ❌ %s %s sent but status write failed: %v", current.Channel, current.ID, err)
			return Outcome{}, err
		}

		deliveriesTotal.WithLabelValues(current.Channel.String(), "success").Inc()
		log.Printf("[DISPATCH] ✅ %s delivered for lead %s", current.Channel, lead.ID)
		return Outcome{
			DeliveryID: current.ID,
			Channel:    current.Channel,
			Status:     entity.StatusSuccess,
			Attempts:   current.Attempts,
		}, nil
	}

	updated, err := uc.Store.IncrementAttempts(ctx, current.ID, current.Attempts, result.Error)
	if isConflict(err) {
		return uc.conflict(ctx, current), nil
	}
	if err != nil {
		log.Printf("[DISPATCH] ❌ %s %s failed and attempt write failed: %v", current.Channel, current.ID, err)
		return Outcome{}, err
	}

	label := "failed"
	if updated.Status == entity.StatusGaveUp {
		label = "gave_up"
	}
	deliveriesTotal.WithLabelValues(current.Channel.String(), label).Inc()
	log.Printf("[DISPATCH] ⚠️ %s failed for lead %s (attempt %d, %s): %s",
		current.Channel, lead.ID, updated.Attempts, updated.Status, result.Error)

	return Outcome{
		DeliveryID: updated.ID,
		Channel:    updated.Channel,
		Status:     updated.Status,
		Attempts:   updated.Attempts,
		Error:      result.Error,
	}, nil
}

// DispatchAll attempts every PENDING delivery of a lead once, one goroutine per channel.
// Channel failures are recorded on their delivery; only storage errors are returned, joined.
func (uc *DispatchLeadUseCase) DispatchAll(ctx context.Context, leadID string) ([]Outcome, error) {
	lead, err := uc.Store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	deliveries, err := uc.Store.ListDeliveriesByLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	pending := make([]entity.Delivery, 0, len(deliveries))
	for _, d := range deliveries {
		if d.Status == entity.StatusPending {
			pending = append(pending, d)
		}
	}

	outcomes := make([]Outcome, len(pending))
	errs := make([]error, len(pending))

	var wg sync.WaitGroup
	for i, d := range pending {
		wg.Add(1)
		go func(i int, d entity.Delivery) {
			defer wg.Done()
			outcomes[i], errs[i] = uc.AttemptOne(ctx, d, *lead)
			if errs[i] != nil {
				outcomes[i] = Outcome{DeliveryID: d.ID, Channel: d.Channel, Status: d.Status, Attempts: d.Attempts}
				errs[i] = fmt.Errorf("dispatch %s: %w", d.Channel, errs[i])
			}
		}(i, d)
	}
	wg.Wait()

	return outcomes, errors.Join(errs...)
}

func (uc *DispatchLeadUseCase) send(ctx context.Context, channel entity.Channel, lead entity.Lead) (result SendResult) {
	sender, ok := uc.Senders[channel]
	if !ok || sender == nil {
		return Failed(fmt.Sprintf("no sender configured for channel %s", channel))
	}

	sendCtx, cancel := context.WithTimeout(ctx, uc.SendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = Failed(fmt.Sprintf("sender panic: %v", r))
		}
	}()

	result = sender.Send(sendCtx, lead)
	if !result.Success && result.Error == "" {
		result.Error = "unknown error"
	}
	return result
}

// conflict reports a write that lost against another writer, with the row as it now stands.
func (uc *DispatchLeadUseCase) conflict(ctx context.Context, seen *entity.Delivery) Outcome {
	log.Printf("[DISPATCH] %s %s was updated concurrently, dropping this attempt", seen.Channel, seen.ID)
	if latest, err := uc.Store.GetDelivery(ctx, seen.ID); err == nil {
		seen = latest
	}
	return skipped(seen, ReasonConflict)
}

func skipped(d *entity.Delivery, reason string) Outcome {
	return Outcome{
		DeliveryID: d.ID,
		Channel:    d.Channel,
		Status:     d.Status,
		Attempts:   d.Attempts,
		Skipped:    true,
		Reason:     reason,
	}
}

func isConflict(err error) bool {
	return errors.Is(err, entity.ErrConcurrentUpdate) || errors.Is(err, entity.ErrTerminalState)
}
