package domain

import (
	"encoding/json"
	"time"
)

// DeadLetter records an envelope that exhausted its retry budget. The
// subscription is deactivated at the same moment; the record exists for
// operator visibility, not for automatic redelivery.
type DeadLetter struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	TenantID       string          `json:"tenant_id"`
	EventType      string          `json:"event_type"`
	Envelope       json.RawMessage `json:"envelope"`
	TotalAttempts  int             `json:"total_attempts"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy     *string         `json:"resolved_by,omitempty"`
}
