package domain

import "time"

// RetryItem is one pending redelivery queued after a failed attempt.
// Attempts counts HTTP attempts already made; it never exceeds the
// configured maximum before the item is abandoned.
type RetryItem struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	Envelope       Envelope  `json:"envelope"`
	Attempts       int       `json:"attempts"`
	NextRetryAt    time.Time `json:"next_retry_at"`
	Priority       int       `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
}
