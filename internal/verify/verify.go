// Package verify authenticates raw webhook bodies against per-provider
// HMAC signatures. Verification operates on the exact wire bytes;
// re-serializing a parsed payload before verification is a bug.
package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrSignatureInvalid is returned for a missing, malformed or
	// mismatching signature.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrSignatureExpired is returned when the request timestamp falls
	// outside the replay window (Slack only).
	ErrSignatureExpired = errors.New("signature expired")
	// ErrSecretNotConfigured is returned when the workspace has no
	// secret for the provider. This is a hard rejection, never a
	// pass-through.
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
)

// hmacSHA256Hex computes the hex HMAC-SHA256 of msg under secret.
func hmacSHA256Hex(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHex compares an expected hex digest against a provided one in
// constant time. Inputs of differing length compare unequal without
// leaking where they diverge.
func equalHex(expected, provided string) bool {
	e, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	p, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(e, p)
}
