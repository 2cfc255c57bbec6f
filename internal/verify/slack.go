package verify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlackReplayWindow bounds |now - request timestamp|. Requests outside
// the window are rejected even with a valid signature.
const SlackReplayWindow = 5 * time.Minute

const slackSignaturePrefix = "v0="

// Slack validates a Slack request signature: HMAC-SHA256 over
// "v0:<timestamp>:<body>" under the signing secret, compared against
// the X-Slack-Signature header ("v0=<hex>"). The timestamp check runs
// first so stale requests fail with ErrSignatureExpired regardless of
// signature validity.
func Slack(secret string, body []byte, signature, timestamp string, now time.Time) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp header", ErrSignatureInvalid)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > SlackReplayWindow || age < -SlackReplayWindow {
		return ErrSignatureExpired
	}

	provided, ok := strings.CutPrefix(signature, slackSignaturePrefix)
	if !ok || provided == "" {
		return fmt.Errorf("%w: missing v0 signature", ErrSignatureInvalid)
	}

	base := fmt.Sprintf("v0:%s:%s", timestamp, body)
	expected := hmacSHA256Hex(secret, []byte(base))
	if !equalHex(expected, provided) {
		return ErrSignatureInvalid
	}

	return nil
}
