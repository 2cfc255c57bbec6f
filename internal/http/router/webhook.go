package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, handler *webhook.Handler) {
	router.POST("/slack/:workspace_id", handler.HandleSlack)
	router.POST("/github/:workspace_id", handler.HandleGitHub)
	router.POST("/jira/:workspace_id", handler.HandleJira)
}
