package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingDispatcher struct {
	calls atomic.Int32

	mu     sync.Mutex
	events []string
}

func (d *countingDispatcher) Dispatch(_ context.Context, tenantID, eventType string, payload json.RawMessage) {
	d.calls.Add(1)
	d.mu.Lock()
	d.events = append(d.events, eventType)
	d.mu.Unlock()
}

func newTestService(t *testing.T, d Dispatcher) *Service {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(d, 3, 5*time.Second, logger)
}

func TestRaiseEvent_Validation(t *testing.T) {
	tests := []struct {
		name      string
		tenantID  string
		eventType string
		payload   json.RawMessage
		wantErr   error
	}{
		{"missing tenant", "", "order.created", json.RawMessage(`{}`), ErrMissingTenant},
		{"missing event type", "tenant-1", "", json.RawMessage(`{}`), ErrMissingEventType},
		{"nil payload", "tenant-1", "order.created", nil, ErrInvalidPayload},
		{"invalid json", "tenant-1", "order.created", json.RawMessage(`{not json`), ErrInvalidPayload},
	}

	d := &countingDispatcher{}
	svc := newTestService(t, d)
	svc.Start()
	defer svc.Stop()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RaiseEvent(tt.tenantID, tt.eventType, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RaiseEvent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if d.calls.Load() != 0 {
		t.Errorf("invalid events should never reach the dispatcher, got %d calls", d.calls.Load())
	}
}

func TestRaiseEvent_DispatchesAsynchronously(t *testing.T) {
	d := &countingDispatcher{}
	svc := newTestService(t, d)
	svc.Start()

	for i := 0; i < 10; i++ {
		if err := svc.RaiseEvent("tenant-1", "order.created", json.RawMessage(`{"n":1}`)); err != nil {
			t.Fatalf("raise event %d: %v", i, err)
		}
	}

	// Stop drains the channel and waits for workers
	svc.Stop()

	if d.calls.Load() != 10 {
		t.Errorf("expected 10 dispatches, got %d", d.calls.Load())
	}
}

func TestRaiseEvent_ReturnsBeforeDispatchCompletes(t *testing.T) {
	block := make(chan struct{})
	d := &blockingDispatcher{block: block}
	svc := newTestService(t, d)
	svc.Start()

	start := time.Now()
	if err := svc.RaiseEvent("tenant-1", "order.created", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("raise event: %v", err)
	}
	elapsed := time.Since(start)

	// The dispatcher is still blocked, yet RaiseEvent returned
	if elapsed > time.Second {
		t.Errorf("RaiseEvent should not wait on dispatch, took %v", elapsed)
	}

	close(block)
	svc.Stop()
}

func TestRaiseEvent_FullQueueRejectsInsteadOfBlocking(t *testing.T) {
	block := make(chan struct{})
	d := &blockingDispatcher{block: block}
	svc := newTestService(t, d)
	svc.Start()

	// 3 workers block in Dispatch and the buffer holds 12 more, so at
	// most 15 raises can be accepted before the queue is full.
	var gotFull bool
	for i := 0; i < 100; i++ {
		err := svc.RaiseEvent("tenant-1", "order.created", json.RawMessage(`{}`))
		if errors.Is(err, ErrQueueFull) {
			gotFull = true
			break
		}
		if err != nil {
			t.Fatalf("raise event %d: %v", i, err)
		}
	}

	if !gotFull {
		t.Error("a saturated queue should reject with ErrQueueFull, not block")
	}

	close(block)
	svc.Stop()
}

type blockingDispatcher struct {
	block chan struct{}
}

func (d *blockingDispatcher) Dispatch(_ context.Context, tenantID, eventType string, payload json.RawMessage) {
	<-d.block
}
