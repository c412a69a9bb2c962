package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		secret  string
	}{
		{
			name:    "basic payload",
			payload: []byte(`{"eventType":"order.created","data":{"id":"123"}}`),
			secret:  "my-secret-key",
		},
		{
			name:    "empty payload",
			payload: []byte(`{}`),
			secret:  "secret",
		},
		{
			name:    "unicode payload",
			payload: []byte(`{"name":"café","price":"€10"}`),
			secret:  "unicode-key-日本語",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Sign(tt.secret, tt.payload)

			// Verify it's a valid hex string
			decoded, err := hex.DecodeString(sig)
			if err != nil {
				t.Fatalf("signature is not valid hex: %v", err)
			}

			// HMAC-SHA256 should always produce 32 bytes (64 hex chars)
			if len(decoded) != 32 {
				t.Fatalf("expected 32 bytes, got %d", len(decoded))
			}

			// Verify against standard library
			mac := hmac.New(sha256.New, []byte(tt.secret))
			mac.Write(tt.payload)
			expected := hex.EncodeToString(mac.Sum(nil))

			if sig != expected {
				t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expected)
			}
		})
	}
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte(`{"eventType":"test"}`)
	secret := "test-secret"

	sig1 := Sign(secret, payload)
	sig2 := Sign(secret, payload)

	if sig1 != sig2 {
		t.Error("HMAC should be deterministic — same input should produce same output")
	}
}

func TestSign_DifferentSecrets(t *testing.T) {
	payload := []byte(`{"eventType":"test"}`)

	sig1 := Sign("secret-1", payload)
	sig2 := Sign("secret-2", payload)

	if sig1 == sig2 {
		t.Error("different secrets should produce different signatures")
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	payload := []byte(`{"eventType":"payment.succeeded","data":{"amount":42}}`)
	secret := "shared-secret"

	sig := Sign(secret, payload)
	if !Verify(secret, payload, sig) {
		t.Fatal("Verify should accept a signature produced by Sign")
	}
}

func TestVerify_AnyByteChangeInvalidates(t *testing.T) {
	payload := []byte(`{"eventType":"order.updated","data":{"id":"o-1"}}`)
	secret := "shared-secret"
	sig := Sign(secret, payload)

	for i := range payload {
		tampered := make([]byte, len(payload))
		copy(tampered, payload)
		tampered[i] ^= 0x01

		if Verify(secret, tampered, sig) {
			t.Fatalf("signature should be invalid after flipping byte %d", i)
		}
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	payload := []byte(`{}`)

	if Verify("secret", payload, "not-hex-at-all") {
		t.Error("non-hex signature should be rejected")
	}
	if Verify("secret", payload, "") {
		t.Error("empty signature should be rejected")
	}
	if Verify("wrong-secret", payload, Sign("secret", payload)) {
		t.Error("signature under a different secret should be rejected")
	}
}
