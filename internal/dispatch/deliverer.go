package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/commercekit/hookrelay/internal/domain"
	"github.com/commercekit/hookrelay/internal/signer"
	"github.com/google/uuid"
)

// Headers attached to every outbound delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderRequestID = "X-Request-ID"
	HeaderEvent     = "X-Webhook-Event"
	HeaderAttempt   = "X-Webhook-Attempt"
)

// Result classifies one HTTP delivery attempt. Outcome is binary:
// Delivered() is true only for a 2xx response; timeouts, network errors
// and non-2xx statuses are all failures.
type Result struct {
	StatusCode int
	Duration   time.Duration
	Err        error
}

func (r Result) Delivered() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessage renders the failure for subscription bookkeeping.
func (r Result) ErrorMessage() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if !r.Delivered() {
		return fmt.Sprintf("endpoint returned HTTP %d", r.StatusCode)
	}
	return ""
}

// Deliverer performs the signed HTTP POST to a subscriber endpoint.
type Deliverer struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDeliverer creates a deliverer whose HTTP client enforces the hard
// per-request timeout.
func NewDeliverer(timeout time.Duration, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Deliver serializes the envelope, signs the exact body bytes and POSTs
// them to the subscription's target. attempt is the overall attempt
// number for this envelope, sent to the receiver as a header.
func (d *Deliverer) Deliver(ctx context.Context, sub domain.Subscription, env domain.Envelope, attempt int) Result {
	start := time.Now()

	body, err := json.Marshal(env)
	if err != nil {
		return Result{Err: fmt.Errorf("serializing envelope: %w", err), Duration: time.Since(start)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("building request: %w", err), Duration: time.Since(start)}
	}

	// Custom headers first so subscribers cannot override the
	// authentication headers.
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signer.Sign(sub.Secret, body))
	req.Header.Set(HeaderTimestamp, env.Timestamp)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	req.Header.Set(HeaderEvent, env.EventType)
	req.Header.Set(HeaderAttempt, fmt.Sprintf("%d", attempt))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		result := Result{Err: err, Duration: time.Since(start)}
		d.logDelivery(sub, env, attempt, result)
		return result
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	result := Result{StatusCode: resp.StatusCode, Duration: time.Since(start)}
	d.logDelivery(sub, env, attempt, result)
	return result
}

func (d *Deliverer) logDelivery(sub domain.Subscription, env domain.Envelope, attempt int, result Result) {
	if result.Delivered() {
		d.logger.Info("delivery successful",
			"subscription_id", sub.ID,
			"event_type", env.EventType,
			"attempt", attempt,
			"status_code", result.StatusCode,
			"response_time_ms", result.Duration.Milliseconds(),
		)
		return
	}

	d.logger.Warn("delivery failed",
		"subscription_id", sub.ID,
		"event_type", env.EventType,
		"attempt", attempt,
		"status_code", result.StatusCode,
		"error", result.ErrorMessage(),
		"response_time_ms", result.Duration.Milliseconds(),
	)
}
