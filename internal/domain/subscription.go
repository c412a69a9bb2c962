package domain

import (
	"time"
)

// Subscription is one external system's registered interest in a tenant's
// events: a callback URL, a shared signing secret and the event types it
// wants delivered.
type Subscription struct {
	ID                    string            `json:"id"`
	TenantID              string            `json:"tenant_id"`
	URL                   string            `json:"url"`
	Secret                string            `json:"-"`
	EventTypes            []string          `json:"event_types"`
	Headers               map[string]string `json:"headers,omitempty"`
	RateLimitPerSecond    int               `json:"rate_limit_per_second"`
	Active                bool              `json:"active"`
	LastTriggeredAt       *time.Time        `json:"last_triggered_at,omitempty"`
	LastError             *string           `json:"last_error,omitempty"`
	ConsecutiveRetryCount int               `json:"consecutive_retry_count"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

type RegisterSubscriptionRequest struct {
	TenantID           string            `json:"tenant_id"`
	URL                string            `json:"url"`
	Secret             string            `json:"secret"`
	EventTypes         []string          `json:"event_types"`
	Headers            map[string]string `json:"headers,omitempty"`
	RateLimitPerSecond int               `json:"rate_limit_per_second,omitempty"`
}
