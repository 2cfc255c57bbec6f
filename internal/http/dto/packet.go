package dto

import (
	"time"

	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/service"
)

type SummarizeRequest struct {
	IncludeCommits bool   `json:"include_commits"`
	Tone           string `json:"tone,omitempty"`
	Async          bool   `json:"async,omitempty"`
}

type PacketResponse struct {
	ID           int64              `json:"id"`
	TaskID       int64              `json:"task_id"`
	Status       model.PacketStatus `json:"status"`
	EventIDs     []int64            `json:"event_ids"`
	Summary      *string            `json:"summary,omitempty"`
	SummaryModel *string            `json:"summary_model,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	PendingSince *time.Time         `json:"pending_since,omitempty"`
	FinalizedAt  *time.Time         `json:"finalized_at,omitempty"`
	ExportedAt   *time.Time         `json:"exported_at,omitempty"`
}

type PacketViewResponse struct {
	Packet  PacketResponse `json:"packet"`
	TaskKey string         `json:"task_key"`
	Events  []model.Event  `json:"events"`
}

type SummarizeResponse struct {
	Packet   PacketResponse `json:"packet"`
	Enqueued bool           `json:"enqueued"`
}

type ExportResponse struct {
	Packet   PacketResponse `json:"packet"`
	Document string         `json:"document"`
}

type ShareResponse struct {
	ShareToken string `json:"share_token"`
}

func NewPacketResponse(p *model.ProofPacket) PacketResponse {
	return PacketResponse{
		ID:           p.ID,
		TaskID:       p.TaskID,
		Status:       p.Status,
		EventIDs:     p.EventIDs,
		Summary:      p.Summary,
		SummaryModel: p.SummaryModel,
		CreatedAt:    p.CreatedAt,
		PendingSince: p.PendingSince,
		FinalizedAt:  p.FinalizedAt,
		ExportedAt:   p.ExportedAt,
	}
}

func NewPacketViewResponse(view *service.PacketView) PacketViewResponse {
	return PacketViewResponse{
		Packet:  NewPacketResponse(view.Packet),
		TaskKey: view.Task.TaskKey,
		Events:  view.Events,
	}
}
