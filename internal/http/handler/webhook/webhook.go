// Package webhook terminates the provider ingestion boundary. Bodies
// are read raw and passed to verification untouched; re-serializing
// before the signature check would break it.
package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/service"
	"github.com/vins-anity/trailpack/internal/verify"
)

type Handler struct {
	ingest service.IngestService
}

func NewHandler(ingest service.IngestService) *Handler {
	return &Handler{ingest: ingest}
}

func (h *Handler) HandleSlack(c *gin.Context)  { h.handle(c, model.ProviderSlack) }
func (h *Handler) HandleGitHub(c *gin.Context) { h.handle(c, model.ProviderGitHub) }
func (h *Handler) HandleJira(c *gin.Context)   { h.handle(c, model.ProviderJira) }

func (h *Handler) handle(c *gin.Context, provider model.Provider) {
	ctx := c.Request.Context()

	workspaceID, err := strconv.ParseInt(c.Param("workspace_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	// Slack signs its URL verification handshake like any other event,
	// so the challenge is only echoed after the signature checks out.
	var challenge string
	if provider == model.ProviderSlack {
		challenge, _ = slackChallenge(body)
	}

	result, err := h.ingest.Ingest(ctx, service.IngestParams{
		WorkspaceID: workspaceID,
		Provider:    provider,
		Body:        body,
		Headers:     flattenHeaders(c.Request),
	})
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrSecretNotConfigured):
			c.JSON(http.StatusForbidden, gin.H{"error": "no signing secret configured"})
		case errors.Is(err, verify.ErrSignatureInvalid), errors.Is(err, verify.ErrSignatureExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		default:
			slog.ErrorContext(ctx, "webhook ingestion failed", "error", err, "provider", provider)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process delivery"})
		}
		return
	}

	if challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}

	switch {
	case result.Ignored:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": result.IgnoreReason})
	case result.Duplicate:
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"status":   "appended",
			"event_id": result.Event.ID,
			"task_id":  result.Task.ID,
		})
	}
}

func slackChallenge(body []byte) (string, bool) {
	var p struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return "", false
	}
	if p.Type != "url_verification" || p.Challenge == "" {
		return "", false
	}
	return p.Challenge, true
}

func flattenHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}
	return headers
}
