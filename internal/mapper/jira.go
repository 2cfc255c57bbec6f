package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vins-anity/trailpack/internal/model"
)

type JiraMapper struct{}

func NewJiraMapper() *JiraMapper {
	return &JiraMapper{}
}

type jiraPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Timestamp    int64  `json:"timestamp"`
	Issue        struct {
		Key    string `json:"key"`
		Fields struct {
			Status struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	} `json:"issue"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
	Changelog struct {
		Items []struct {
			Field    string `json:"field"`
			ToString string `json:"toString"`
		} `json:"items"`
	} `json:"changelog"`
}

// Map classifies Jira issue webhooks. Assignment opens the handshake;
// a transition into a done-like status proposes closure; reopening
// vetoes it. Jira sends no delivery ID, so DeliveryID is derived from
// the issue key and event timestamp.
func (m *JiraMapper) Map(ctx context.Context, body []byte, headers map[string]string) (*Normalized, error) {
	var p jiraPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse jira payload: %w", err)
	}

	if p.Issue.Key == "" {
		return nil, fmt.Errorf("%w: jira payload without issue key", ErrUnsupportedEvent)
	}

	var eventType model.EventType
	switch p.WebhookEvent {
	case "jira:issue_created":
		eventType = model.EventHandshake
	case "jira:issue_updated":
		var ok bool
		eventType, ok = classifyJiraTransition(p)
		if !ok {
			return nil, fmt.Errorf("%w: jira update without a lifecycle transition", ErrUnsupportedEvent)
		}
	default:
		return nil, fmt.Errorf("%w: jira event %q", ErrUnsupportedEvent, p.WebhookEvent)
	}

	deliveryID := ""
	if p.Timestamp > 0 {
		deliveryID = p.Issue.Key + ":" + strconv.FormatInt(p.Timestamp, 10)
	}

	return &Normalized{
		EventType:     eventType,
		TaskKey:       p.Issue.Key,
		Payload:       json.RawMessage(body),
		TriggerSource: "jira:webhook",
		DeliveryID:    deliveryID,
		Actor:         p.User.Name,
	}, nil
}

func classifyJiraTransition(p jiraPayload) (model.EventType, bool) {
	for _, item := range p.Changelog.Items {
		if item.Field != "status" {
			continue
		}
		switch item.ToString {
		case "Done", "Resolved", "Closed":
			return model.EventClosureProposed, true
		case "Reopened", "In Progress":
			return model.EventClosureVetoed, true
		}
	}
	return "", false
}
