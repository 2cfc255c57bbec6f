package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vins-anity/trailpack/internal/model"
)

// SlackMapper classifies app mentions carrying delivery-handshake and
// closure keywords. Slack is the human channel: agreement, dispute and
// sign-off happen as messages directed at the bot.
type SlackMapper struct{}

func NewSlackMapper() *SlackMapper {
	return &SlackMapper{}
}

type slackPayload struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Event   struct {
		Type string `json:"type"`
		Text string `json:"text"`
		User string `json:"user"`
	} `json:"event"`
}

func (m *SlackMapper) Map(ctx context.Context, body []byte, headers map[string]string) (*Normalized, error) {
	var p slackPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse slack payload: %w", err)
	}

	if p.Type != "event_callback" || p.Event.Type != "app_mention" {
		return nil, fmt.Errorf("%w: slack event %q/%q", ErrUnsupportedEvent, p.Type, p.Event.Type)
	}

	taskKey := ExtractTaskKey(p.Event.Text)
	if taskKey == "" {
		return nil, fmt.Errorf("%w: no task key in slack message", ErrUnsupportedEvent)
	}

	eventType, err := classifySlackText(p.Event.Text)
	if err != nil {
		return nil, err
	}

	return &Normalized{
		EventType:     eventType,
		TaskKey:       taskKey,
		Payload:       json.RawMessage(body),
		TriggerSource: "slack:webhook",
		DeliveryID:    p.EventID,
		Actor:         p.Event.User,
	}, nil
}

func classifySlackText(text string) (model.EventType, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "reject handshake"), strings.Contains(lower, "decline handshake"):
		return model.EventHandshakeRejected, nil
	case strings.Contains(lower, "handshake"):
		return model.EventHandshake, nil
	case strings.Contains(lower, "veto"):
		return model.EventClosureVetoed, nil
	case strings.Contains(lower, "finalize"):
		return model.EventClosureFinalized, nil
	case strings.Contains(lower, "propose closure"), strings.Contains(lower, "close out"):
		return model.EventClosureProposed, nil
	}
	return "", fmt.Errorf("%w: no lifecycle keyword in slack message", ErrUnsupportedEvent)
}
