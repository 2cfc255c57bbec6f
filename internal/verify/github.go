package verify

import (
	"fmt"
	"strings"
)

const githubSignaturePrefix = "sha256="

// GitHub validates the X-Hub-Signature-256 header: HMAC-SHA256 over the
// raw body under the webhook secret, header format "sha256=<hex>".
// GitHub carries no timestamp, so replay protection is delivery-ID
// deduplication in the ingestion pipeline, not this check.
func GitHub(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}

	provided, ok := strings.CutPrefix(signature, githubSignaturePrefix)
	if !ok || provided == "" {
		return fmt.Errorf("%w: missing sha256 signature", ErrSignatureInvalid)
	}

	expected := hmacSHA256Hex(secret, body)
	if !equalHex(expected, provided) {
		return ErrSignatureInvalid
	}

	return nil
}
