package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/http/handler"
)

func PacketRouter(router *gin.RouterGroup, packets *handler.PacketHandler) {
	router.GET("/:packet_id", packets.Get)
	router.POST("/:packet_id/summarize", packets.Summarize)
	router.POST("/:packet_id/export", packets.Export)
	router.POST("/:packet_id/share", packets.Share)
	router.DELETE("/:packet_id/share", packets.Unshare)
}
