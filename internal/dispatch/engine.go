// Package dispatch fans one raised event out to its subscribers:
// resolve, sign, POST concurrently, classify, and hand failures to the
// retry scheduler.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/commercekit/hookrelay/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Registry resolves dispatch targets and keeps durable outcome
// bookkeeping. Implemented by registry.Registry.
type Registry interface {
	Resolve(ctx context.Context, tenantID, eventType string) ([]domain.Subscription, error)
	RecordOutcome(ctx context.Context, subscriptionID string, success bool, errMsg string) error
}

// FailureTracker is the circuit breaker consulted before and after each
// first attempt. Implemented by breaker.Tracker.
type FailureTracker interface {
	IsHealthy(ctx context.Context, subscriptionID string) bool
	RecordSuccess(ctx context.Context, subscriptionID string)
	// RecordFailure reports whether this failure tripped the breaker.
	RecordFailure(ctx context.Context, subscriptionID string) bool
}

// RetryQueue accepts failed deliveries for later redelivery.
// Implemented by retry.Scheduler.
type RetryQueue interface {
	Enqueue(ctx context.Context, subscriptionID string, env domain.Envelope, attempts int, lastErr string) error
	// Defer re-queues without counting a failure, used when a delivery
	// is held back by the rate limiter.
	Defer(ctx context.Context, subscriptionID string, env domain.Envelope, attempts int) error
}

// Limiter bounds the outbound request rate per subscription.
type Limiter interface {
	Allow(ctx context.Context, subscriptionID string, limit int) bool
}

// Engine orchestrates the first delivery round for one raised event.
// All dependencies are injected so tests can swap clocks and transports.
type Engine struct {
	registry    Registry
	tracker     FailureTracker
	retries     RetryQueue
	limiter     Limiter
	deliverer   *Deliverer
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

func NewEngine(registry Registry, tracker FailureTracker, retries RetryQueue, limiter Limiter, deliverer *Deliverer, concurrency int, logger *slog.Logger) *Engine {
	return &Engine{
		registry:    registry,
		tracker:     tracker,
		retries:     retries,
		limiter:     limiter,
		deliverer:   deliverer,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Dispatch delivers one event to every matching active subscription.
// Per-subscriber failures never surface to the caller; a registry
// resolve failure is treated as "no subscribers" and logged. Dispatch
// returns once the first attempt round has resolved for every target —
// retries happen later on the scheduler's clock.
func (e *Engine) Dispatch(ctx context.Context, tenantID, eventType string, payload json.RawMessage) {
	env := domain.NewEnvelope(eventType, tenantID, payload, e.now())

	subs, err := e.registry.Resolve(ctx, tenantID, eventType)
	if err != nil {
		e.logger.Error("subscription resolve failed, treating as no subscribers",
			"error", err,
			"tenant_id", tenantID,
			"event_type", eventType,
		)
		return
	}

	if len(subs) == 0 {
		e.logger.Debug("no matching subscriptions",
			"tenant_id", tenantID,
			"event_type", eventType,
		)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}

	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			e.attempt(gctx, sub, env)
			return nil
		})
	}

	g.Wait()

	e.logger.Info("dispatch round complete",
		"tenant_id", tenantID,
		"event_type", eventType,
		"subscriptions", len(subs),
	)
}

// attempt runs the first delivery attempt for one subscription.
func (e *Engine) attempt(ctx context.Context, sub domain.Subscription, env domain.Envelope) {
	if !e.tracker.IsHealthy(ctx, sub.ID) {
		e.logger.Debug("skipping unhealthy subscription", "subscription_id", sub.ID)
		return
	}

	if e.limiter != nil && !e.limiter.Allow(ctx, sub.ID, sub.RateLimitPerSecond) {
		if err := e.retries.Defer(ctx, sub.ID, env, 0); err != nil {
			e.logger.Error("failed to defer rate-limited delivery",
				"error", err,
				"subscription_id", sub.ID,
			)
		}
		return
	}

	result := e.deliverer.Deliver(ctx, sub, env, 1)

	if result.Delivered() {
		e.registry.RecordOutcome(ctx, sub.ID, true, "")
		e.tracker.RecordSuccess(ctx, sub.ID)
		return
	}

	msg := result.ErrorMessage()
	e.registry.RecordOutcome(ctx, sub.ID, false, msg)

	if tripped := e.tracker.RecordFailure(ctx, sub.ID); tripped {
		// The subscription was just deactivated; redelivery would be
		// wasted until an operator intervenes.
		e.logger.Debug("breaker tripped, not enqueueing retry", "subscription_id", sub.ID)
		return
	}

	if err := e.retries.Enqueue(ctx, sub.ID, env, 1, msg); err != nil {
		e.logger.Error("failed to enqueue retry",
			"error", err,
			"subscription_id", sub.ID,
			"event_type", env.EventType,
		)
	}
}
