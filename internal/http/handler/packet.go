package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/chain"
	"github.com/vins-anity/trailpack/internal/http/dto"
	"github.com/vins-anity/trailpack/internal/service"
	"github.com/vins-anity/trailpack/internal/summary"
)

type PacketHandler struct {
	packets service.PacketService
}

func NewPacketHandler(packets service.PacketService) *PacketHandler {
	return &PacketHandler{packets: packets}
}

// Assemble derives the task's open packet from its verified chain.
func (h *PacketHandler) Assemble(c *gin.Context) {
	taskID, ok := pathID(c, "task_id")
	if !ok {
		return
	}

	packet, err := h.packets.Assemble(c.Request.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case errors.Is(err, chain.ErrCorrupted):
			// A corrupted chain must never produce a packet.
			c.JSON(http.StatusConflict, gin.H{"error": "event chain corrupted", "detail": err.Error()})
		default:
			slog.ErrorContext(c.Request.Context(), "packet assembly failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble packet"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.NewPacketResponse(packet))
}

func (h *PacketHandler) Get(c *gin.Context) {
	packetID, ok := pathID(c, "packet_id")
	if !ok {
		return
	}

	view, err := h.packets.Get(c.Request.Context(), packetID)
	if err != nil {
		h.renderError(c, err, "failed to fetch packet")
		return
	}

	c.JSON(http.StatusOK, dto.NewPacketViewResponse(view))
}

func (h *PacketHandler) Summarize(c *gin.Context) {
	packetID, ok := pathID(c, "packet_id")
	if !ok {
		return
	}

	var req dto.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.packets.Summarize(c.Request.Context(), service.SummarizeParams{
		PacketID: packetID,
		Options: summary.Options{
			IncludeCommits: req.IncludeCommits,
			Tone:           req.Tone,
		},
		Async: req.Async,
	})
	if err != nil {
		h.renderError(c, err, "failed to summarize packet")
		return
	}

	status := http.StatusOK
	if result.Enqueued {
		status = http.StatusAccepted
	}
	c.JSON(status, dto.SummarizeResponse{
		Packet:   dto.NewPacketResponse(result.Packet),
		Enqueued: result.Enqueued,
	})
}

func (h *PacketHandler) Export(c *gin.Context) {
	packetID, ok := pathID(c, "packet_id")
	if !ok {
		return
	}

	doc, packet, err := h.packets.Export(c.Request.Context(), packetID)
	if err != nil {
		h.renderError(c, err, "failed to export packet")
		return
	}

	c.JSON(http.StatusOK, dto.ExportResponse{
		Packet:   dto.NewPacketResponse(packet),
		Document: doc,
	})
}

func (h *PacketHandler) Share(c *gin.Context) {
	packetID, ok := pathID(c, "packet_id")
	if !ok {
		return
	}

	token, err := h.packets.Share(c.Request.Context(), packetID)
	if err != nil {
		h.renderError(c, err, "failed to share packet")
		return
	}

	c.JSON(http.StatusCreated, dto.ShareResponse{ShareToken: token})
}

func (h *PacketHandler) Unshare(c *gin.Context) {
	packetID, ok := pathID(c, "packet_id")
	if !ok {
		return
	}

	if err := h.packets.Unshare(c.Request.Context(), packetID); err != nil {
		h.renderError(c, err, "failed to revoke share token")
		return
	}

	c.Status(http.StatusNoContent)
}

// GetShared serves the public read-only view behind a share token.
func (h *PacketHandler) GetShared(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing share token"})
		return
	}

	view, err := h.packets.GetShared(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrPacketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		slog.ErrorContext(c.Request.Context(), "failed to resolve share token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch packet"})
		return
	}

	c.JSON(http.StatusOK, dto.NewPacketViewResponse(view))
}

func (h *PacketHandler) renderError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrPacketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "packet not found"})
	case errors.Is(err, service.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, service.ErrPacketNotFinalized):
		c.JSON(http.StatusConflict, gin.H{"error": "packet is not finalized"})
	default:
		slog.ErrorContext(c.Request.Context(), fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
