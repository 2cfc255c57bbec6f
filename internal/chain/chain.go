package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vins-anity/trailpack/internal/model"
)

// ErrCorrupted signals an integrity violation. A corrupted chain must
// never be repaired silently; it requires manual investigation.
var ErrCorrupted = errors.New("event chain corrupted")

// CorruptionError identifies the first event whose stored hash or link
// does not match recomputation.
type CorruptionError struct {
	EventID int64
	Reason  string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("event chain corrupted at event %d: %s", e.EventID, e.Reason)
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorrupted
}

// Hash computes an event's chain hash:
//
//	H(version || canonical(content) || prevHash)
//
// where prevHash is the preceding event's hash, or Genesis for the
// first event of a task.
func Hash(ev *model.Event, prevHash string) (string, error) {
	canonical, err := Canonicalize(ev.TaskID, string(ev.EventType), ev.Payload, ev.TriggerSource, ev.CreatedAt)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte{SchemaVersion})
	h.Write(canonical)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes every event's hash against the stored chain. Events
// must be in chain order (ascending seq). It returns a *CorruptionError
// naming the first mismatching event, or nil when the chain is intact.
// An empty chain is trivially valid.
func Verify(events []model.Event) error {
	prevHash := Genesis

	for i := range events {
		ev := &events[i]

		if ev.PrevHash != prevHash {
			return &CorruptionError{
				EventID: ev.ID,
				Reason:  fmt.Sprintf("prev_hash %s does not match predecessor hash %s", ev.PrevHash, prevHash),
			}
		}

		expected, err := Hash(ev, prevHash)
		if err != nil {
			return fmt.Errorf("recomputing hash for event %d: %w", ev.ID, err)
		}
		if ev.EventHash != expected {
			return &CorruptionError{
				EventID: ev.ID,
				Reason:  "stored event_hash does not match recomputed hash",
			}
		}

		prevHash = ev.EventHash
	}

	return nil
}

// Tail returns the hash the next appended event must link to.
func Tail(events []model.Event) string {
	if len(events) == 0 {
		return Genesis
	}
	return events[len(events)-1].EventHash
}
