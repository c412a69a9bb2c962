// Package registry is the durable store of subscriber callbacks plus a
// TTL-bounded resolve cache sitting on the dispatch hot path.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/commercekit/hookrelay/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrValidation wraps all registration-time input errors so callers can
// distinguish bad input from infrastructure failures.
var ErrValidation = errors.New("invalid subscription")

// ErrNotFound is returned when an operation targets a subscription id
// that does not exist.
var ErrNotFound = errors.New("subscription not found")

// Store is the durable backend, implemented by store.PostgresStore.
type Store interface {
	CreateSubscription(ctx context.Context, req domain.RegisterSubscriptionRequest) (*domain.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]domain.Subscription, error)
	ResolveSubscriptions(ctx context.Context, tenantID, eventType string) ([]domain.Subscription, error)
	RecordDeliveryOutcome(ctx context.Context, id string, success bool, errMsg string) error
	DeactivateSubscription(ctx context.Context, id, reason string) (bool, error)
}

// Registry fronts the store with a bounded TTL cache keyed by
// (tenant, event type). The store is the source of truth; the cache may
// be stale up to its TTL, which costs at most one wasted attempt.
type Registry struct {
	store  Store
	cache  *expirable.LRU[string, []domain.Subscription]
	logger *slog.Logger
}

func New(store Store, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		cache:  expirable.NewLRU[string, []domain.Subscription](cacheSize, nil, cacheTTL),
		logger: logger,
	}
}

func cacheKey(tenantID, eventType string) string {
	return tenantID + "|" + eventType
}

// Register validates and persists a new subscription, then invalidates
// the resolve cache for each subscribed event type.
func (r *Registry) Register(ctx context.Context, req domain.RegisterSubscriptionRequest) (*domain.Subscription, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	sub, err := r.store.CreateSubscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("registering subscription: %w", err)
	}

	for _, eventType := range sub.EventTypes {
		r.cache.Remove(cacheKey(sub.TenantID, eventType))
	}

	r.logger.Info("subscription registered",
		"subscription_id", sub.ID,
		"tenant_id", sub.TenantID,
		"event_types", sub.EventTypes,
	)

	return sub, nil
}

// Resolve returns the active subscriptions interested in eventType for
// the tenant, serving from cache when possible.
func (r *Registry) Resolve(ctx context.Context, tenantID, eventType string) ([]domain.Subscription, error) {
	key := cacheKey(tenantID, eventType)

	if subs, ok := r.cache.Get(key); ok {
		return subs, nil
	}

	subs, err := r.store.ResolveSubscriptions(ctx, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("resolving subscriptions: %w", err)
	}

	r.cache.Add(key, subs)
	return subs, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	return r.store.GetSubscription(ctx, id)
}

func (r *Registry) List(ctx context.Context, tenantID string) ([]domain.Subscription, error) {
	return r.store.ListSubscriptions(ctx, tenantID)
}

// RecordOutcome updates the durable bookkeeping on a subscription row.
// Failures here are logged, not propagated — bookkeeping must never
// break the delivery path.
func (r *Registry) RecordOutcome(ctx context.Context, id string, success bool, errMsg string) error {
	if err := r.store.RecordDeliveryOutcome(ctx, id, success, errMsg); err != nil {
		r.logger.Error("failed to record delivery outcome",
			"error", err,
			"subscription_id", id,
		)
		return err
	}
	return nil
}

// Deactivate flips the subscription inactive and purges it from the
// resolve cache. Deactivating an already-inactive subscription is a
// no-op beyond a single log line.
func (r *Registry) Deactivate(ctx context.Context, id, reason string) error {
	sub, err := r.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("loading subscription for deactivation: %w", err)
	}
	if sub == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	changed, err := r.store.DeactivateSubscription(ctx, id, reason)
	if err != nil {
		return err
	}

	for _, eventType := range sub.EventTypes {
		r.cache.Remove(cacheKey(sub.TenantID, eventType))
	}

	if !changed {
		r.logger.Debug("subscription already inactive", "subscription_id", id)
		return nil
	}

	r.logger.Warn("subscription deactivated",
		"subscription_id", id,
		"tenant_id", sub.TenantID,
		"reason", reason,
	)

	return nil
}

func validateRegistration(req domain.RegisterSubscriptionRequest) error {
	if req.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrValidation)
	}
	if req.Secret == "" {
		return fmt.Errorf("%w: secret is required", ErrValidation)
	}
	if len(req.EventTypes) == 0 {
		return fmt.Errorf("%w: at least one event type is required", ErrValidation)
	}
	for _, eventType := range req.EventTypes {
		if eventType == "" {
			return fmt.Errorf("%w: event types must be non-empty", ErrValidation)
		}
	}

	u, err := url.Parse(req.URL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrValidation)
	}

	return nil
}
