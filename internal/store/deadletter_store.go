package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/commercekit/hookrelay/internal/domain"
	"github.com/jackc/pgx/v5"
)

// DeadLetterRecord holds data for inserting a dead letter entry.
type DeadLetterRecord struct {
	SubscriptionID string
	TenantID       string
	EventType      string
	Envelope       json.RawMessage
	TotalAttempts  int
	LastError      string
}

// InsertDeadLetter records an envelope abandoned after exhausting its
// retry attempts.
func (s *PostgresStore) InsertDeadLetter(ctx context.Context, rec DeadLetterRecord) error {
	var lastErr *string
	if rec.LastError != "" {
		lastErr = &rec.LastError
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letters (subscription_id, tenant_id, event_type, envelope, total_attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.SubscriptionID, rec.TenantID, rec.EventType, rec.Envelope, rec.TotalAttempts, lastErr)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead letter entries with optional filtering.
func (s *PostgresStore) ListDeadLetters(ctx context.Context, subscriptionID string, resolved bool, limit int) ([]domain.DeadLetter, error) {
	query := `SELECT id, subscription_id, tenant_id, event_type, envelope, total_attempts, last_error, created_at, resolved_at, resolved_by FROM dead_letters`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if subscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIdx))
		args = append(args, subscriptionID)
		argIdx++
	}

	if resolved {
		conditions = append(conditions, "resolved_at IS NOT NULL")
	} else {
		conditions = append(conditions, "resolved_at IS NULL")
	}

	query += " WHERE "
	for i, c := range conditions {
		if i > 0 {
			query += " AND "
		}
		query += c
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		err := rows.Scan(
			&dl.ID, &dl.SubscriptionID, &dl.TenantID, &dl.EventType,
			&dl.Envelope, &dl.TotalAttempts, &dl.LastError,
			&dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, dl)
	}

	if letters == nil {
		letters = []domain.DeadLetter{}
	}

	return letters, nil
}

// GetDeadLetter returns a single dead letter by ID.
func (s *PostgresStore) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	err := s.pool.QueryRow(ctx, `
		SELECT id, subscription_id, tenant_id, event_type, envelope, total_attempts, last_error, created_at, resolved_at, resolved_by
		FROM dead_letters WHERE id = $1
	`, id).Scan(
		&dl.ID, &dl.SubscriptionID, &dl.TenantID, &dl.EventType,
		&dl.Envelope, &dl.TotalAttempts, &dl.LastError,
		&dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &dl, nil
}

// ResolveDeadLetter marks a dead letter as resolved.
func (s *PostgresStore) ResolveDeadLetter(ctx context.Context, id string, resolvedBy string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE dead_letters SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dead letter not found or already resolved")
	}
	return nil
}
