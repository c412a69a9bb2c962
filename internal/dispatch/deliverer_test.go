package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/commercekit/hookrelay/internal/domain"
	"github.com/commercekit/hookrelay/internal/signer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEnvelope() domain.Envelope {
	return domain.NewEnvelope("order.created", "tenant-1", json.RawMessage(`{"order_id":"o-1"}`), time.Now())
}

func TestDeliver_SetsHeaders(t *testing.T) {
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := domain.Subscription{
		ID:      "sub-1",
		URL:     server.URL,
		Secret:  "test-secret",
		Headers: map[string]string{"X-Custom-Token": "abc123"},
	}
	env := testEnvelope()

	d := NewDeliverer(5*time.Second, testLogger())
	result := d.Deliver(context.Background(), sub, env, 1)

	if !result.Delivered() {
		t.Fatalf("expected success, got status=%d err=%v", result.StatusCode, result.Err)
	}

	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", receivedHeaders.Get("Content-Type"))
	}
	if receivedHeaders.Get(HeaderSignature) == "" {
		t.Error("signature header should be set")
	}
	if receivedHeaders.Get(HeaderTimestamp) != env.Timestamp {
		t.Errorf("timestamp header = %q, want %q", receivedHeaders.Get(HeaderTimestamp), env.Timestamp)
	}
	if receivedHeaders.Get(HeaderRequestID) == "" {
		t.Error("request id header should be set")
	}
	if receivedHeaders.Get(HeaderEvent) != "order.created" {
		t.Errorf("event header = %q", receivedHeaders.Get(HeaderEvent))
	}
	if receivedHeaders.Get(HeaderAttempt) != "1" {
		t.Errorf("attempt header = %q", receivedHeaders.Get(HeaderAttempt))
	}
	if receivedHeaders.Get("X-Custom-Token") != "abc123" {
		t.Error("custom subscriber headers should be merged in")
	}
}

func TestDeliver_SignatureCoversBody(t *testing.T) {
	var receivedSig string
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSig = r.Header.Get(HeaderSignature)
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secret := "my-webhook-secret"
	sub := domain.Subscription{ID: "sub-sig", URL: server.URL, Secret: secret}

	d := NewDeliverer(5*time.Second, testLogger())
	d.Deliver(context.Background(), sub, testEnvelope(), 1)

	if !signer.Verify(secret, receivedBody, receivedSig) {
		t.Error("receiver should be able to verify the signature from the raw body")
	}

	// The signed body is the envelope, timestamp included
	var env domain.Envelope
	if err := json.Unmarshal(receivedBody, &env); err != nil {
		t.Fatalf("body should be the JSON envelope: %v", err)
	}
	if env.Timestamp == "" || env.EventType != "order.created" || env.TriggeredBy != "tenant-1" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestDeliver_CustomHeadersCannotOverrideSignature(t *testing.T) {
	var receivedSig string
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSig = r.Header.Get(HeaderSignature)
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := domain.Subscription{
		ID:      "sub-1",
		URL:     server.URL,
		Secret:  "real-secret",
		Headers: map[string]string{HeaderSignature: "spoofed"},
	}

	d := NewDeliverer(5*time.Second, testLogger())
	d.Deliver(context.Background(), sub, testEnvelope(), 1)

	if receivedSig == "spoofed" {
		t.Fatal("custom headers must not override the signature header")
	}
	if !signer.Verify("real-secret", receivedBody, receivedSig) {
		t.Error("signature should be computed from the real secret")
	}
}

func TestDeliver_Non2xxIsFailure(t *testing.T) {
	for _, status := range []int{301, 400, 404, 500, 503} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		sub := domain.Subscription{ID: "sub-1", URL: server.URL, Secret: "s"}
		d := NewDeliverer(5*time.Second, testLogger())
		result := d.Deliver(context.Background(), sub, testEnvelope(), 1)
		server.Close()

		if result.Delivered() {
			t.Errorf("HTTP %d should be classified as failure", status)
		}
		if result.ErrorMessage() == "" {
			t.Errorf("HTTP %d should produce an error message", status)
		}
	}
}

func TestDeliver_TimeoutIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := domain.Subscription{ID: "sub-1", URL: server.URL, Secret: "s"}
	d := NewDeliverer(50*time.Millisecond, testLogger())
	result := d.Deliver(context.Background(), sub, testEnvelope(), 1)

	if result.Delivered() {
		t.Error("timed-out delivery should be a failure")
	}
	if result.Err == nil {
		t.Error("timeout should surface as an error")
	}
}

func TestDeliver_ConnectionRefusedIsFailure(t *testing.T) {
	sub := domain.Subscription{ID: "sub-1", URL: "http://127.0.0.1:1", Secret: "s"}
	d := NewDeliverer(time.Second, testLogger())
	result := d.Deliver(context.Background(), sub, testEnvelope(), 1)

	if result.Delivered() {
		t.Error("connection error should be a failure")
	}
}
