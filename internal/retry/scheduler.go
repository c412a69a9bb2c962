// Package retry holds failed deliveries in a durable Redis sorted set
// and redelivers them on an exponential backoff schedule.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/commercekit/hookrelay/internal/dispatch"
	"github.com/commercekit/hookrelay/internal/domain"
	"github.com/commercekit/hookrelay/internal/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis sorted set holding pending retry items, scored
// by due time in microseconds.
const QueueKey = "retry_queue"

// Registry is the slice of the subscription registry the scheduler
// needs: re-fetch a target before redelivery, record outcomes, and
// deactivate on exhaustion.
type Registry interface {
	Get(ctx context.Context, id string) (*domain.Subscription, error)
	RecordOutcome(ctx context.Context, subscriptionID string, success bool, errMsg string) error
	Deactivate(ctx context.Context, subscriptionID, reason string) error
}

// FailureTracker heals the breaker window when a retry succeeds.
type FailureTracker interface {
	RecordSuccess(ctx context.Context, subscriptionID string)
}

// Deliverer is the HTTP delivery path shared with the dispatch engine.
type Deliverer interface {
	Deliver(ctx context.Context, sub domain.Subscription, env domain.Envelope, attempt int) dispatch.Result
}

// DeadLetters records envelopes abandoned after the attempt ceiling.
type DeadLetters interface {
	InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error
}

// Scheduler owns the retry queue: enqueueing failed deliveries with
// backoff and draining due items on a fixed interval. The ZRem claim in
// the drain makes each item processed by at most one instance.
type Scheduler struct {
	redisClient *redis.Client
	registry    Registry
	tracker     FailureTracker
	deliverer   Deliverer
	deadLetters DeadLetters
	limiter     dispatch.Limiter

	baseDelay   time.Duration
	maxAttempts int
	interval    time.Duration
	batchSize   int64

	logger *slog.Logger
	now    func() time.Time
}

func NewScheduler(redisClient *redis.Client, registry Registry, tracker FailureTracker, deliverer Deliverer, deadLetters DeadLetters, limiter dispatch.Limiter, baseDelay time.Duration, maxAttempts int, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		redisClient: redisClient,
		registry:    registry,
		tracker:     tracker,
		deliverer:   deliverer,
		deadLetters: deadLetters,
		limiter:     limiter,
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
		interval:    interval,
		batchSize:   50,
		logger:      logger,
		now:         time.Now,
	}
}

// backoff returns the delay before the next attempt: base × 2^(attempts-1).
func (s *Scheduler) backoff(attempts int) time.Duration {
	if attempts < 1 {
		return s.baseDelay
	}
	return s.baseDelay << (attempts - 1)
}

// Enqueue queues a redelivery after a failed attempt. attempts counts
// the HTTP attempts already made for this envelope.
func (s *Scheduler) Enqueue(ctx context.Context, subscriptionID string, env domain.Envelope, attempts int, lastErr string) error {
	item := domain.RetryItem{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		Envelope:       env,
		Attempts:       attempts,
		NextRetryAt:    s.now().Add(s.backoff(attempts)),
		CreatedAt:      s.now(),
	}

	if err := s.push(ctx, item); err != nil {
		return err
	}

	s.logger.Info("retry enqueued",
		"subscription_id", subscriptionID,
		"event_type", env.EventType,
		"attempts", attempts,
		"next_retry_at", item.NextRetryAt,
		"last_error", lastErr,
	)

	return nil
}

// Defer re-queues a delivery held back by the rate limiter without
// counting a failure. The item becomes due again after one base delay.
func (s *Scheduler) Defer(ctx context.Context, subscriptionID string, env domain.Envelope, attempts int) error {
	item := domain.RetryItem{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		Envelope:       env,
		Attempts:       attempts,
		NextRetryAt:    s.now().Add(s.baseDelay),
		CreatedAt:      s.now(),
	}
	return s.push(ctx, item)
}

func (s *Scheduler) push(ctx context.Context, item domain.RetryItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshaling retry item: %w", err)
	}

	// Priority only nudges ordering among items due at the same time.
	score := float64(item.NextRetryAt.UnixMicro()) - float64(item.Priority)

	if err := s.redisClient.ZAdd(ctx, QueueKey, redis.Z{
		Score:  score,
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("queuing retry item: %w", err)
	}

	return nil
}

// QueueDepth returns the number of pending retry items.
func (s *Scheduler) QueueDepth(ctx context.Context) (int64, error) {
	return s.redisClient.ZCard(ctx, QueueKey).Result()
}

// Run drains due items until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("retry scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler stopping")
			return
		case <-ticker.C:
			s.Drain(ctx)
		}
	}
}

// Drain processes one sweep of due items. Each item is isolated: an
// unexpected error while processing one item re-queues it for the next
// sweep and never aborts the loop.
func (s *Scheduler) Drain(ctx context.Context) {
	nowScore := strconv.FormatFloat(float64(s.now().UnixMicro()), 'f', -1, 64)

	results, err := s.redisClient.ZRangeByScore(ctx, QueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   nowScore,
		Count: s.batchSize,
	}).Result()
	if err != nil {
		s.logger.Error("failed to poll retry queue", "error", err)
		return
	}

	for _, member := range results {
		// Claim the item — if another instance already took it, skip.
		removed, err := s.redisClient.ZRem(ctx, QueueKey, member).Result()
		if err != nil {
			s.logger.Error("failed to claim retry item", "error", err)
			continue
		}
		if removed == 0 {
			continue
		}

		var item domain.RetryItem
		if err := json.Unmarshal([]byte(member), &item); err != nil {
			s.logger.Error("dropping malformed retry item", "error", err)
			continue
		}

		if err := s.process(ctx, item); err != nil {
			s.logger.Error("retry processing failed, re-queueing item",
				"error", err,
				"retry_item_id", item.ID,
				"subscription_id", item.SubscriptionID,
			)
			if pushErr := s.push(ctx, item); pushErr != nil {
				s.logger.Error("failed to re-queue retry item", "error", pushErr, "retry_item_id", item.ID)
			}
		}
	}
}

// process redelivers one claimed item. A returned error means the item
// should be re-queued unchanged; explicit HTTP outcomes never error.
func (s *Scheduler) process(ctx context.Context, item domain.RetryItem) error {
	sub, err := s.registry.Get(ctx, item.SubscriptionID)
	if err != nil {
		return fmt.Errorf("loading subscription: %w", err)
	}
	if sub == nil || !sub.Active {
		s.logger.Debug("dropping retry for inactive subscription",
			"subscription_id", item.SubscriptionID,
			"retry_item_id", item.ID,
		)
		return nil
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, sub.ID, sub.RateLimitPerSecond) {
		item.NextRetryAt = s.now().Add(s.baseDelay)
		return s.push(ctx, item)
	}

	result := s.deliverer.Deliver(ctx, *sub, item.Envelope, item.Attempts+1)

	if result.Delivered() {
		s.registry.RecordOutcome(ctx, sub.ID, true, "")
		s.tracker.RecordSuccess(ctx, sub.ID)
		s.logger.Info("redelivery successful",
			"subscription_id", sub.ID,
			"event_type", item.Envelope.EventType,
			"attempts", item.Attempts+1,
		)
		return nil
	}

	msg := result.ErrorMessage()
	s.registry.RecordOutcome(ctx, sub.ID, false, msg)

	item.Attempts++
	if item.Attempts >= s.maxAttempts {
		s.abandon(ctx, *sub, item, msg)
		return nil
	}

	item.NextRetryAt = s.now().Add(s.backoff(item.Attempts))
	return s.push(ctx, item)
}

// abandon drops an exhausted item: dead-letter it for operators and
// deactivate the subscription, same as a tripped breaker.
func (s *Scheduler) abandon(ctx context.Context, sub domain.Subscription, item domain.RetryItem, lastErr string) {
	envelope, err := json.Marshal(item.Envelope)
	if err != nil {
		envelope = []byte("{}")
	}

	if err := s.deadLetters.InsertDeadLetter(ctx, store.DeadLetterRecord{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		EventType:      item.Envelope.EventType,
		Envelope:       envelope,
		TotalAttempts:  item.Attempts,
		LastError:      lastErr,
	}); err != nil {
		s.logger.Error("failed to record dead letter", "error", err, "subscription_id", sub.ID)
	}

	reason := fmt.Sprintf("deactivated after exhausting %d delivery attempts", item.Attempts)
	if err := s.registry.Deactivate(ctx, sub.ID, reason); err != nil {
		s.logger.Error("failed to deactivate exhausted subscription", "error", err, "subscription_id", sub.ID)
	}

	s.logger.Warn("delivery abandoned",
		"subscription_id", sub.ID,
		"event_type", item.Envelope.EventType,
		"total_attempts", item.Attempts,
		"last_error", lastErr,
	)
}
