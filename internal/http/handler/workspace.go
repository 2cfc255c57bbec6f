package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/http/dto"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/service"
)

type WorkspaceHandler struct {
	workspaces service.WorkspaceService
}

func NewWorkspaceHandler(workspaces service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces}
}

// SetSecret installs or rotates a provider signing secret. The secret
// is write-only; no endpoint ever reads it back.
func (h *WorkspaceHandler) SetSecret(c *gin.Context) {
	workspaceID, ok := pathID(c, "workspace_id")
	if !ok {
		return
	}

	var req dto.SetSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider := model.Provider(c.Param("provider"))
	err := h.workspaces.SetSecret(c.Request.Context(), workspaceID, provider, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownProvider), errors.Is(err, service.ErrEmptySecret):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrWorkspaceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		default:
			slog.ErrorContext(c.Request.Context(), "secret rotation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store signing secret"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stored", "provider": provider})
}
