// Package ingress is the single entry point business code uses to raise
// an event. RaiseEvent validates synchronously and queues the dispatch
// work to an internal channel, so business transactions never wait on
// subscriber availability.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Validation errors returned synchronously from RaiseEvent.
var (
	ErrMissingTenant    = errors.New("tenant id is required")
	ErrMissingEventType = errors.New("event type is required")
	ErrInvalidPayload   = errors.New("payload must be valid JSON")
)

// ErrQueueFull is returned when every worker is busy and the event
// buffer has no room. The caller decides whether to retry or shed load.
var ErrQueueFull = errors.New("event queue is full")

// Dispatcher consumes raised events. Implemented by dispatch.Engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID, eventType string, payload json.RawMessage)
}

type event struct {
	tenantID  string
	eventType string
	payload   json.RawMessage
}

// Service runs a fixed pool of workers draining the event channel. Each
// worker performs one full dispatch round per event on its own context,
// detached from the raising caller.
type Service struct {
	dispatcher      Dispatcher
	events          chan event
	workers         int
	dispatchTimeout time.Duration
	wg              sync.WaitGroup
	logger          *slog.Logger
}

func NewService(dispatcher Dispatcher, workers int, dispatchTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		dispatcher:      dispatcher,
		events:          make(chan event, workers*4),
		workers:         workers,
		dispatchTimeout: dispatchTimeout,
		logger:          logger,
	}
}

// Start launches the worker goroutines.
func (s *Service) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("event ingress started", "workers", s.workers)
}

// Stop closes the channel and waits for in-flight dispatches to finish.
func (s *Service) Stop() {
	close(s.events)
	s.wg.Wait()
	s.logger.Info("event ingress stopped")
}

// RaiseEvent validates the event and queues it for dispatch, returning
// immediately in either case. Delivery outcomes never reach the raising
// caller; the only errors are validation failures and ErrQueueFull when
// stalled subscribers have filled the buffer.
func (s *Service) RaiseEvent(tenantID, eventType string, payload json.RawMessage) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	if eventType == "" {
		return ErrMissingEventType
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return ErrInvalidPayload
	}

	select {
	case s.events <- event{tenantID: tenantID, eventType: eventType, payload: payload}:
		return nil
	default:
		s.logger.Warn("event queue full, rejecting event",
			"tenant_id", tenantID,
			"event_type", eventType,
		)
		return ErrQueueFull
	}
}

func (s *Service) worker() {
	defer s.wg.Done()

	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		s.dispatcher.Dispatch(ctx, ev.tenantID, ev.eventType, ev.payload)
		cancel()
	}
}
