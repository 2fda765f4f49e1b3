package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

// DefaultBackoff is indexed by failures so far: one failure waits 2s, two wait 4s.
var DefaultBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// DefaultPendingGrace is how long a PENDING delivery may sit untouched before the sweep treats
// its first attempt as abandoned.
const DefaultPendingGrace = time.Minute

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_retry_sweeps_total",
			Help: "Retry sweeps run, by result",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lead_retry_sweep_duration_seconds",
			Help:    "Duration of retry sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// SweepStats summarises one pass over the FAILED and stranded PENDING deliveries.
type SweepStats struct {
	Scanned   int `json:"scanned"`
	Stranded  int `json:"stranded"`
	Eligible  int `json:"eligible"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	GaveUp    int `json:"gaveUp"`
	Waiting   int `json:"waiting"`
	Orphaned  int `json:"orphaned"`
	Skipped   int `json:"skipped"`
}

func (s SweepStats) String() string {
	return fmt.Sprintf("scanned=%d stranded=%d eligible=%d succeeded=%d failed=%d gave_up=%d waiting=%d orphaned=%d skipped=%d",
		s.Scanned, s.Stranded, s.Eligible, s.Succeeded, s.Failed, s.GaveUp, s.Waiting, s.Orphaned, s.Skipped)
}

// RetryWorker re-attempts FAILED deliveries whose backoff window has passed, and PENDING
// deliveries whose first attempt never got recorded within PendingGrace.
type RetryWorker struct {
	Store        usecase.LeadStore
	Dispatcher   *usecase.DispatchLeadUseCase
	Interval     time.Duration
	SweepTimeout time.Duration
	Backoff      []time.Duration
	PendingGrace time.Duration
	Now          func() time.Time
}

func NewRetryWorker(store usecase.LeadStore, dispatcher *usecase.DispatchLeadUseCase, interval, sweepTimeout time.Duration, backoff []time.Duration) *RetryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	return &RetryWorker{
		Store:        store,
		Dispatcher:   dispatcher,
		Interval:     interval,
		SweepTimeout: sweepTimeout,
		Backoff:      backoff,
		PendingGrace: DefaultPendingGrace,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// RequiredDelay is how long a delivery with the given failure count waits after its last update.
func RequiredDelay(backoff []time.Duration, attempts int) time.Duration {
	if len(backoff) == 0 {
		return 0
	}
	i := attempts - 1
	if i < 0 {
		i = 0
	}
	if i >= len(backoff) {
		i = len(backoff) - 1
	}
	return backoff[i]
}

// Start runs a sweep right away and then every Interval until ctx is done.
// A tick that fires while a sweep is still running is skipped.
func (w *RetryWorker) Start(ctx context.Context) {
	log.Printf("🕒 [RETRY] worker started (every %s, backoff %v)", w.Interval, w.Backoff)

	w.run(ctx)

	logger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	c.Schedule(cron.Every(w.Interval), cron.FuncJob(func() { w.run(ctx) }))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	log.Println("⚠️ [RETRY] worker stopped")
}

func (w *RetryWorker) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := w.Sweep(ctx)
	if err != nil {
		log.Printf("❌ [RETRY] sweep finished with errors (%s): %v", stats, err)
		return
	}
	if stats.Scanned > 0 {
		log.Printf("[RETRY] sweep done: %s", stats)
	}
}

// Sweep makes one pass. Each delivery is handled on its own; a storage error on one
// does not stop the others. Cancelling ctx ends the pass between deliveries.
func (w *RetryWorker) Sweep(ctx context.Context) (stats SweepStats, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		sweepsTotal.WithLabelValues(result).Inc()
		sweepDuration.Observe(time.Since(start).Seconds())
	}()

	if w.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.SweepTimeout)
		defer cancel()
	}

	failed, err := w.Store.ListDeliveriesByStatus(ctx, entity.StatusFailed)
	if err != nil {
		return stats, err
	}
	pending, err := w.Store.ListDeliveriesByStatus(ctx, entity.StatusPending)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(failed) + len(pending)

	now := w.Now()
	due := make([]entity.Delivery, 0, len(failed)+len(pending))
	for _, d := range failed {
		if now.Sub(d.UpdatedAt) < RequiredDelay(w.Backoff, d.Attempts) {
			stats.Waiting++
			continue
		}
		due = append(due, d)
	}
	// PENDING rows younger than the grace period may still be in their intake dispatch.
	for _, d := range pending {
		if now.Sub(d.UpdatedAt) < w.PendingGrace {
			stats.Waiting++
			continue
		}
		stats.Stranded++
		due = append(due, d)
	}

	var errs []error
	for _, d := range due {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}
		stats.Eligible++

		lead, err := w.Store.GetLead(ctx, d.LeadID)
		if errors.Is(err, entity.ErrLeadNotFound) {
			stats.Orphaned++
			if err := w.Dispatcher.RecordOrphan(ctx, d); err != nil {
				errs = append(errs, fmt.Errorf("orphan %s: %w", d.ID, err))
			}
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("load lead for %s: %w", d.ID, err))
			continue
		}

		out, err := w.Dispatcher.AttemptOne(ctx, d, *lead)
		if err != nil {
			errs = append(errs, fmt.Errorf("retry %s: %w", d.ID, err))
			continue
		}

		switch {
		case out.Skipped:
			stats.Skipped++
		case out.Status == entity.StatusSuccess:
			stats.Succeeded++
		case out.Status == entity.StatusGaveUp:
			stats.GaveUp++
		default:
			stats.Failed++
		}
	}

	return stats, errors.Join(errs...)
}
