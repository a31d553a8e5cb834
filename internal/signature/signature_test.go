package signature

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/Strob0t/TriggerGate/internal/domain"
)

func hexHMAC(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHMACSHA256Valid(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	sig := hexHMAC(body, "s3cret")

	tests := []struct {
		name   string
		header string
	}{
		{"bare hex", sig},
		{"github prefix", "sha256=" + sig},
		{"pagerduty prefix", "v1=" + sig},
		{"rotation, second candidate matches", "v1=" + hexHMAC(body, "old-secret") + ",v1=" + sig},
		{"rotation with spaces", hexHMAC(body, "old") + ", " + sig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := HMACSHA256(body, tt.header, "s3cret"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHMACSHA256Invalid(t *testing.T) {
	body := []byte(`{"action":"opened"}`)

	tests := []struct {
		name   string
		header string
		secret string
	}{
		{"empty header", "", "s3cret"},
		{"empty secret", hexHMAC(body, "s3cret"), ""},
		{"wrong secret", hexHMAC(body, "other"), "s3cret"},
		{"not hex", "sha256=zzzz", "s3cret"},
		{"all candidates wrong", hexHMAC(body, "a") + "," + hexHMAC(body, "b"), "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := HMACSHA256(body, tt.header, tt.secret)
			if !errors.Is(err, domain.ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestHMACSHA256TamperedBody(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	sig := hexHMAC(body, "s3cret")

	tampered := []byte(`{"ref":"refs/heads/evil"}`)
	if err := HMACSHA256(tampered, sig, "s3cret"); err == nil {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestHMACCompare(t *testing.T) {
	base := []byte("v0:1700000000:command=deploy")
	sig := "v0=" + HMACSHA256Signed(base, "slack-secret")

	if err := HMACCompare(base, sig, "v0=", "slack-secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := HMACCompare(base, sig, "v0=", "wrong"); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if err := HMACCompare([]byte("v0:1700000001:command=deploy"), sig, "v0=", "slack-secret"); err == nil {
		t.Fatal("expected changed base string to fail")
	}
}

func TestEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	body := []byte(`{"type":2}`)
	ts := "1700000000"
	signed := append([]byte(ts), body...)
	sig := ed25519.Sign(priv, signed)

	pubHex := hex.EncodeToString(pub)
	sigHex := hex.EncodeToString(sig)

	if err := Ed25519(body, ts, sigHex, pubHex); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name           string
		body           []byte
		ts, sig, pub   string
	}{
		{"wrong timestamp", body, "1700000001", sigHex, pubHex},
		{"tampered body", []byte(`{"type":3}`), ts, sigHex, pubHex},
		{"missing signature", body, ts, "", pubHex},
		{"missing timestamp", body, "", sigHex, pubHex},
		{"bad public key", body, ts, sigHex, "abcd"},
		{"bad signature hex", body, ts, "zz", pubHex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Ed25519(tt.body, tt.ts, tt.sig, tt.pub)
			if !errors.Is(err, domain.ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestStaticToken(t *testing.T) {
	if err := StaticToken("tok-123", "tok-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := StaticToken("tok-123", "tok-456"); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	// A source with no configured token must reject everything, including
	// an empty header, rather than fail open.
	if err := StaticToken("", ""); err == nil {
		t.Fatal("expected empty configured token to reject")
	}
}
