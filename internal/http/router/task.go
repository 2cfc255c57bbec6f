package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/http/handler"
)

func TaskRouter(router *gin.RouterGroup, tasks *handler.TaskHandler, packets *handler.PacketHandler) {
	router.GET("/:task_id/events", tasks.ListEvents)
	router.GET("/:task_id/chain/verify", tasks.VerifyChain)
	router.POST("/:task_id/packets", packets.Assemble)
}
