package breaker

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeDeactivator struct {
	calls   int
	lastID  string
	lastMsg string
}

func (f *fakeDeactivator) Deactivate(_ context.Context, subscriptionID, reason string) error {
	f.calls++
	f.lastID = subscriptionID
	f.lastMsg = reason
	return nil
}

func setupTracker(t *testing.T, threshold int, window time.Duration) (*Tracker, *fakeDeactivator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := &fakeDeactivator{}
	return NewTracker(client, reg, threshold, window, logger), reg, mr
}

func TestTracker_HealthyByDefault(t *testing.T) {
	tracker, _, _ := setupTracker(t, 3, time.Hour)

	if !tracker.IsHealthy(context.Background(), "sub-1") {
		t.Error("unknown subscription should be healthy")
	}

	state := tracker.GetState(context.Background(), "sub-1")
	if state.State != StateHealthy || state.Failures != 0 {
		t.Errorf("expected healthy/0, got %s/%d", state.State, state.Failures)
	}
}

func TestTracker_TripsAtThresholdExactly(t *testing.T) {
	tracker, reg, _ := setupTracker(t, 3, time.Hour)
	ctx := context.Background()

	if tracker.RecordFailure(ctx, "sub-1") {
		t.Fatal("failure 1 should not trip")
	}
	if tracker.RecordFailure(ctx, "sub-1") {
		t.Fatal("failure 2 should not trip")
	}
	if reg.calls != 0 {
		t.Fatalf("no deactivation expected below threshold, got %d", reg.calls)
	}

	if !tracker.RecordFailure(ctx, "sub-1") {
		t.Fatal("failure 3 should trip the breaker")
	}
	if reg.calls != 1 {
		t.Errorf("expected exactly 1 deactivation, got %d", reg.calls)
	}
	if reg.lastID != "sub-1" {
		t.Errorf("deactivated wrong subscription: %s", reg.lastID)
	}
}

func TestTracker_CounterClearedAfterTrip(t *testing.T) {
	tracker, _, _ := setupTracker(t, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(ctx, "sub-1")
	}

	// Counter was cleared on trip, so the tracker reports healthy again;
	// the registry's active=false is what keeps the subscription out of
	// dispatch.
	state := tracker.GetState(ctx, "sub-1")
	if state.Failures != 0 {
		t.Errorf("counter should be cleared after trip, got %d", state.Failures)
	}
}

func TestTracker_SuccessFullyHeals(t *testing.T) {
	tracker, reg, _ := setupTracker(t, 3, time.Hour)
	ctx := context.Background()

	tracker.RecordFailure(ctx, "sub-1")
	tracker.RecordFailure(ctx, "sub-1")
	tracker.RecordSuccess(ctx, "sub-1")

	// Two more failures should not reach the threshold of 3
	tracker.RecordFailure(ctx, "sub-1")
	if tracker.RecordFailure(ctx, "sub-1") {
		t.Error("counter should have reset on success")
	}
	if reg.calls != 0 {
		t.Errorf("no deactivation expected, got %d", reg.calls)
	}

	state := tracker.GetState(ctx, "sub-1")
	if state.State != StateDegraded || state.Failures != 2 {
		t.Errorf("expected degraded/2, got %s/%d", state.State, state.Failures)
	}
}

func TestTracker_WindowExpiry(t *testing.T) {
	tracker, reg, mr := setupTracker(t, 3, time.Hour)
	ctx := context.Background()

	tracker.RecordFailure(ctx, "sub-1")
	tracker.RecordFailure(ctx, "sub-1")

	// Let the window lapse — old failures no longer count
	mr.FastForward(time.Hour + time.Second)

	if tracker.RecordFailure(ctx, "sub-1") {
		t.Error("failures outside the window should not count toward the threshold")
	}
	if reg.calls != 0 {
		t.Errorf("no deactivation expected, got %d", reg.calls)
	}
}

func TestTracker_DegradedStillHealthy(t *testing.T) {
	tracker, _, _ := setupTracker(t, 3, time.Hour)
	ctx := context.Background()

	tracker.RecordFailure(ctx, "sub-1")
	tracker.RecordFailure(ctx, "sub-1")

	if !tracker.IsHealthy(ctx, "sub-1") {
		t.Error("subscription below threshold should still be healthy")
	}

	state := tracker.GetState(ctx, "sub-1")
	if state.State != StateDegraded {
		t.Errorf("expected %s, got %s", StateDegraded, state.State)
	}
}

func TestTracker_IsolationBetweenSubscriptions(t *testing.T) {
	tracker, reg, _ := setupTracker(t, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(ctx, "sub-1")
	}

	if !tracker.IsHealthy(ctx, "sub-2") {
		t.Error("sub-2 should be unaffected — failure windows are per-subscription")
	}
	if reg.calls != 1 || reg.lastID != "sub-1" {
		t.Errorf("only sub-1 should have been deactivated")
	}
}
