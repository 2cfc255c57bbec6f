package mapper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vins-anity/trailpack/internal/model"
)

type GitHubMapper struct{}

func NewGitHubMapper() *GitHubMapper {
	return &GitHubMapper{}
}

type githubPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Merged bool   `json:"merged"`
		Head   struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
	Review struct {
		State string `json:"state"`
	} `json:"review"`
	WorkflowRun struct {
		Conclusion string `json:"conclusion"`
		HeadBranch string `json:"head_branch"`
		Name       string `json:"name"`
	} `json:"workflow_run"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// Map classifies by the X-GitHub-Event header, then by payload action.
// Unmapped events (labels, stars, pushes without a task key) return
// ErrUnsupportedEvent.
func (m *GitHubMapper) Map(ctx context.Context, body []byte, headers map[string]string) (*Normalized, error) {
	var p githubPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse github payload: %w", err)
	}

	ghEvent := headers["X-Github-Event"]
	if ghEvent == "" {
		ghEvent = headers["X-GitHub-Event"]
	}

	var eventType model.EventType
	var taskKey string

	switch ghEvent {
	case "pull_request":
		taskKey = ExtractTaskKey(p.PullRequest.Head.Ref, p.PullRequest.Title)
		switch {
		case p.Action == "opened" || p.Action == "reopened":
			eventType = model.EventPROpened
		case p.Action == "closed" && p.PullRequest.Merged:
			eventType = model.EventPRMerged
		default:
			return nil, fmt.Errorf("%w: pull_request action %q", ErrUnsupportedEvent, p.Action)
		}
	case "pull_request_review":
		taskKey = ExtractTaskKey(p.PullRequest.Head.Ref, p.PullRequest.Title)
		if p.Action == "submitted" && p.Review.State == "approved" {
			eventType = model.EventPRApproved
		} else {
			return nil, fmt.Errorf("%w: review state %q", ErrUnsupportedEvent, p.Review.State)
		}
	case "workflow_run":
		taskKey = ExtractTaskKey(p.WorkflowRun.HeadBranch, p.WorkflowRun.Name)
		if p.Action != "completed" {
			return nil, fmt.Errorf("%w: workflow_run action %q", ErrUnsupportedEvent, p.Action)
		}
		switch p.WorkflowRun.Conclusion {
		case "success":
			eventType = model.EventCIPassed
		case "failure", "timed_out":
			eventType = model.EventCIFailed
		default:
			return nil, fmt.Errorf("%w: workflow_run conclusion %q", ErrUnsupportedEvent, p.WorkflowRun.Conclusion)
		}
	default:
		return nil, fmt.Errorf("%w: github event %q", ErrUnsupportedEvent, ghEvent)
	}

	if taskKey == "" {
		return nil, fmt.Errorf("%w: no task key in github payload", ErrUnsupportedEvent)
	}

	return &Normalized{
		EventType:     eventType,
		TaskKey:       taskKey,
		Payload:       json.RawMessage(body),
		TriggerSource: "github:webhook",
		DeliveryID:    headers["X-Github-Delivery"],
		Actor:         p.Sender.Login,
	}, nil
}
