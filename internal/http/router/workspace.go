package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/http/handler"
)

func WorkspaceRouter(router *gin.RouterGroup, workspaces *handler.WorkspaceHandler) {
	router.PUT("/:workspace_id/secrets/:provider", workspaces.SetSecret)
}
