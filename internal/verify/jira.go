package verify

import "strings"

// Jira validates a Jira webhook signature: HMAC-SHA256 over the raw
// body under the configured secret, header carrying the bare hex
// digest.
func Jira(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}

	provided := strings.TrimSpace(signature)
	if provided == "" {
		return ErrSignatureInvalid
	}

	expected := hmacSHA256Hex(secret, body)
	if !equalHex(expected, provided) {
		return ErrSignatureInvalid
	}

	return nil
}
