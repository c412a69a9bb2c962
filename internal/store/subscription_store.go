package store

import (
	"context"
	"fmt"

	"github.com/commercekit/hookrelay/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, tenant_id, url, secret, event_types, headers,
	rate_limit_per_second, active, last_triggered_at, last_error,
	consecutive_retry_count, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.URL, &sub.Secret, &sub.EventTypes,
		&sub.Headers, &sub.RateLimitPerSecond, &sub.Active,
		&sub.LastTriggeredAt, &sub.LastError, &sub.ConsecutiveRetryCount,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, req domain.RegisterSubscriptionRequest) (*domain.Subscription, error) {
	headers := req.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (tenant_id, url, secret, event_types, headers, rate_limit_per_second)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+subscriptionColumns,
		req.TenantID, req.URL, req.Secret, req.EventTypes, headers, req.RateLimitPerSecond,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1
	`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, tenantID string) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []interface{}{}

	if tenantID != "" {
		query += " WHERE tenant_id = $1"
		args = append(args, tenantID)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, nil
}

// ResolveSubscriptions returns active subscriptions of a tenant whose
// interest set contains the event type exactly (no wildcards).
func (s *PostgresStore) ResolveSubscriptions(ctx context.Context, tenantID, eventType string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1
		  AND active = true
		  AND event_types @> ARRAY[$2]::text[]
	`, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("resolving subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, nil
}

// RecordDeliveryOutcome updates the durable bookkeeping fields on the
// subscription row. Success clears last_error and the consecutive retry
// counter; failure records the error and increments the counter.
func (s *PostgresStore) RecordDeliveryOutcome(ctx context.Context, id string, success bool, errMsg string) error {
	var err error
	if success {
		_, err = s.pool.Exec(ctx, `
			UPDATE subscriptions
			SET last_triggered_at = NOW(), last_error = NULL,
			    consecutive_retry_count = 0, updated_at = NOW()
			WHERE id = $1
		`, id)
	} else {
		_, err = s.pool.Exec(ctx, `
			UPDATE subscriptions
			SET last_error = $2, consecutive_retry_count = consecutive_retry_count + 1,
			    updated_at = NOW()
			WHERE id = $1
		`, id, errMsg)
	}
	if err != nil {
		return fmt.Errorf("recording delivery outcome: %w", err)
	}
	return nil
}

// DeactivateSubscription flips active to false and stores the reason as
// last_error. Returns false when the subscription was already inactive
// (or does not exist), making repeated deactivation a no-op.
func (s *PostgresStore) DeactivateSubscription(ctx context.Context, id, reason string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET active = false, last_error = $2, updated_at = NOW()
		WHERE id = $1 AND active = true
	`, id, reason)
	if err != nil {
		return false, fmt.Errorf("deactivating subscription: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
