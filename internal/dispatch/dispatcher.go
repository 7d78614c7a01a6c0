package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/retailops/shopify-sync/internal/domain"
	"github.com/retailops/shopify-sync/internal/metrics"
)

type deliveryStore interface {
	ClaimDue(ctx context.Context, limit int) ([]domain.WebhookDelivery, error)
	MarkOutcome(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, errMsg string, elapsed time.Duration) error
	Reschedule(ctx context.Context, id uuid.UUID, nextAttempt time.Time, errMsg string, elapsed time.Duration) error
}

// Dispatcher drains the ledger: it claims due deliveries, routes each to
// its registered handler on a worker pool, and applies the retry policy
// to failures. The ledger itself is the queue; a wake channel lets intake
// cut the polling latency without adding another substrate.
type Dispatcher struct {
	store       deliveryStore
	registry    *Registry
	logger      *slog.Logger
	workers     int
	pollEvery   time.Duration
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	wake        chan struct{}
}

type Options struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

func NewDispatcher(store deliveryStore, registry *Registry, logger *slog.Logger, opts Options) *Dispatcher {
	return &Dispatcher{
		store:       store,
		registry:    registry,
		logger:      logger,
		workers:     opts.Workers,
		pollEvery:   opts.PollInterval,
		maxAttempts: opts.MaxAttempts,
		minBackoff:  opts.MinBackoff,
		maxBackoff:  opts.MaxBackoff,
		wake:        make(chan struct{}, 1),
	}
}

// Notify nudges the dispatcher that fresh work landed. Never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the poll loop and worker pool until ctx is cancelled.
// In-flight deliveries run to a terminal status; there is no mid-flight
// cancel.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started",
		"workers", d.workers,
		"poll_interval", d.pollEvery,
		"topics", d.registry.Topics(),
	)

	jobs := make(chan domain.WebhookDelivery)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for delivery := range jobs {
				d.process(context.WithoutCancel(ctx), delivery)
			}
		}()
	}

	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.wake:
		}
		d.poll(ctx, jobs)
	}
}

func (d *Dispatcher) poll(ctx context.Context, jobs chan<- domain.WebhookDelivery) {
	for {
		claimed, err := d.store.ClaimDue(ctx, d.workers)
		if err != nil {
			d.logger.Error("failed to claim due deliveries", "error", err)
			return
		}
		if len(claimed) == 0 {
			return
		}
		for _, delivery := range claimed {
			select {
			case jobs <- delivery:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, delivery domain.WebhookDelivery) {
	log := d.logger.With(
		"delivery_id", delivery.DeliveryID,
		"topic", delivery.Topic,
		"shop_domain", delivery.ShopDomain,
		"attempt", delivery.Attempts,
	)

	start := time.Now()

	handler, ok := d.registry.Lookup(delivery.Topic)
	if !ok {
		elapsed := time.Since(start)
		log.Warn("no handler registered for topic")
		d.finish(ctx, log, delivery, domain.DeliveryStatusFailed,
			fmt.Sprintf("%s: %s", domain.ErrNoHandler, delivery.Topic), elapsed)
		return
	}

	err := handler(ctx, &delivery)
	elapsed := time.Since(start)

	if err == nil {
		d.finish(ctx, log, delivery, domain.DeliveryStatusSuccess, "", elapsed)
		return
	}

	if IsTransient(err) && delivery.Attempts < d.maxAttempts {
		next := time.Now().UTC().Add(Backoff(delivery.Attempts, d.minBackoff, d.maxBackoff))
		log.Warn("transient failure, rescheduling",
			"error", err,
			"next_attempt_at", next,
		)
		if rErr := d.store.Reschedule(ctx, delivery.ID, next, err.Error(), elapsed); rErr != nil {
			log.Error("failed to reschedule delivery", "error", rErr)
		}
		return
	}

	log.Error("delivery failed permanently", "error", err)
	d.finish(ctx, log, delivery, domain.DeliveryStatusFailed, err.Error(), elapsed)
}

func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, delivery domain.WebhookDelivery, status domain.DeliveryStatus, errMsg string, elapsed time.Duration) {
	if err := d.store.MarkOutcome(ctx, delivery.ID, status, errMsg, elapsed); err != nil {
		log.Error("failed to record delivery outcome", "status", status, "error", err)
	}

	metrics.DeliveriesProcessed.WithLabelValues(delivery.Topic, string(status)).Inc()
	metrics.ProcessingDuration.WithLabelValues(delivery.Topic).Observe(elapsed.Seconds())

	if status == domain.DeliveryStatusSuccess {
		log.Info("delivery processed", "duration_ms", elapsed.Milliseconds())
	}
}
