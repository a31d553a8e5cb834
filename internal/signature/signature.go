// Package signature implements the webhook verification schemes used by
// source adapters: HMAC-SHA256 over the raw body, Ed25519 over
// timestamp||body, and constant-time static token comparison.
//
// All schemes report failure through domain.ErrInvalidSignature without
// further detail, so callers cannot be used as a verification oracle.
package signature

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/Strob0t/TriggerGate/internal/domain"
)

// HMACSHA256 verifies an HMAC-SHA256 hex signature over the raw body.
// The header value may contain several comma-separated candidate
// signatures (sources rotate secrets by signing with old and new keys);
// verification succeeds if any candidate matches. Candidates may carry
// a "sha256=" (GitHub) or "v1=" (PagerDuty) prefix.
func HMACSHA256(body []byte, header, secret string) error {
	if header == "" || secret == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "sha256=")
		candidate = strings.TrimPrefix(candidate, "v1=")

		got, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

// HMACSHA256Signed computes the hex HMAC-SHA256 of msg with secret.
// Used by adapters whose scheme signs a derived string rather than the
// raw body (e.g. Slack's "v0:timestamp:body" base string).
func HMACSHA256Signed(msg []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACCompare verifies a single hex signature against the HMAC of msg,
// tolerating an optional version prefix such as "v0=".
func HMACCompare(msg []byte, header, prefix, secret string) error {
	if header == "" || secret == "" {
		return domain.ErrInvalidSignature
	}
	sig := strings.TrimPrefix(header, prefix)

	got, err := hex.DecodeString(sig)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// Ed25519 verifies a hex-encoded Ed25519 signature over
// timestamp||body using a hex-encoded public key distributed out of
// band (Discord interaction style).
func Ed25519(body []byte, timestamp, sigHex, pubKeyHex string) error {
	if timestamp == "" || sigHex == "" || pubKeyHex == "" {
		return domain.ErrInvalidSignature
	}

	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return domain.ErrInvalidSignature
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return domain.ErrInvalidSignature
	}

	signed := make([]byte, 0, len(timestamp)+len(body))
	signed = append(signed, timestamp...)
	signed = append(signed, body...)

	if !ed25519.Verify(ed25519.PublicKey(pub), signed, sig) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// StaticToken verifies a shared secret echoed in a header. This is the
// lowest-assurance scheme: it is an API key check, not a cryptographic
// signature. The comparison is constant-time.
func StaticToken(got, want string) error {
	if want == "" {
		return domain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return domain.ErrInvalidSignature
	}
	return nil
}
