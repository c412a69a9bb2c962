package store

import (
	"context"
	"fmt"
)

// DeliveryMetrics holds aggregated registry statistics for operators.
type DeliveryMetrics struct {
	ActiveSubscriptions   int `json:"active_subscriptions"`
	InactiveSubscriptions int `json:"inactive_subscriptions"`
	UnresolvedDeadLetters int `json:"unresolved_dead_letters"`
}

// GetDeliveryMetrics returns aggregated statistics from the database.
func (s *PostgresStore) GetDeliveryMetrics(ctx context.Context) (*DeliveryMetrics, error) {
	var m DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE active) AS active,
			COUNT(*) FILTER (WHERE NOT active) AS inactive
		FROM subscriptions
	`).Scan(&m.ActiveSubscriptions, &m.InactiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying subscription counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dead_letters WHERE resolved_at IS NULL
	`).Scan(&m.UnresolvedDeadLetters)
	if err != nil {
		return nil, fmt.Errorf("querying dead letter count: %w", err)
	}

	return &m, nil
}
