// Package breaker tracks per-subscription delivery failures in a rolling
// Redis window and deactivates subscriptions that cross the threshold.
// Unlike a classic half-open breaker there is no automatic recovery:
// a tripped subscription stays inactive until an operator re-registers it.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Failure Tracker states, exposed for the health API.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateTripped  = "tripped"
)

// Deactivator is the registry hook invoked when the breaker trips.
type Deactivator interface {
	Deactivate(ctx context.Context, subscriptionID, reason string) error
}

// Tracker counts consecutive delivery failures per subscription. The
// counter key expires after the window, refreshed on every failure, so
// the window always rolls from the most recent failure.
type Tracker struct {
	redisClient *redis.Client
	registry    Deactivator
	logger      *slog.Logger
	threshold   int
	window      time.Duration
}

func NewTracker(redisClient *redis.Client, registry Deactivator, threshold int, window time.Duration, logger *slog.Logger) *Tracker {
	return &Tracker{
		redisClient: redisClient,
		registry:    registry,
		logger:      logger,
		threshold:   threshold,
		window:      window,
	}
}

func failKey(subscriptionID string) string {
	return fmt.Sprintf("fail:%s", subscriptionID)
}

// RecordFailure increments the windowed counter and reports whether this
// failure tripped the breaker. Tripping deactivates the subscription and
// clears the counter.
func (t *Tracker) RecordFailure(ctx context.Context, subscriptionID string) bool {
	key := failKey(subscriptionID)

	count, err := t.redisClient.Incr(ctx, key).Result()
	if err != nil {
		t.logger.Error("failed to record delivery failure", "error", err, "subscription_id", subscriptionID)
		return false
	}

	// Refresh the TTL so the window rolls from the latest failure.
	t.redisClient.Expire(ctx, key, t.window)

	if count < int64(t.threshold) {
		return false
	}

	reason := fmt.Sprintf("auto-deactivated after %d consecutive delivery failures", count)
	if err := t.registry.Deactivate(ctx, subscriptionID, reason); err != nil {
		t.logger.Error("failed to deactivate tripped subscription",
			"error", err,
			"subscription_id", subscriptionID,
		)
	}

	t.redisClient.Del(ctx, key)

	t.logger.Warn("failure threshold reached, subscription tripped",
		"subscription_id", subscriptionID,
		"failures", count,
		"threshold", t.threshold,
	)

	return true
}

// RecordSuccess fully heals the circuit: one successful delivery deletes
// the counter.
func (t *Tracker) RecordSuccess(ctx context.Context, subscriptionID string) {
	t.redisClient.Del(ctx, failKey(subscriptionID))
}

// IsHealthy reports whether the subscription is below the failure
// threshold. The registry's active flag is authoritative; this is a
// cheap pre-flight check that skips doomed HTTP attempts.
func (t *Tracker) IsHealthy(ctx context.Context, subscriptionID string) bool {
	count, err := t.redisClient.Get(ctx, failKey(subscriptionID)).Int64()
	if err != nil {
		// Missing key or Redis trouble — fail open.
		return true
	}
	return count < int64(t.threshold)
}

// State describes the tracker's view of one subscription.
type State struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// GetState returns the current window state for the health API.
func (t *Tracker) GetState(ctx context.Context, subscriptionID string) State {
	count, err := t.redisClient.Get(ctx, failKey(subscriptionID)).Int64()
	if err != nil {
		return State{State: StateHealthy}
	}

	state := StateDegraded
	if count >= int64(t.threshold) {
		state = StateTripped
	}

	return State{State: state, Failures: int(count)}
}
