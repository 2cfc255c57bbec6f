package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/core/config"
	"github.com/vins-anity/trailpack/internal/http/handler"
	"github.com/vins-anity/trailpack/internal/http/handler/webhook"
	"github.com/vins-anity/trailpack/internal/http/middleware"
	"github.com/vins-anity/trailpack/internal/service"
)

// Limiters groups the per-route-class rate limiters so the caller owns
// their lifecycle.
type Limiters struct {
	Webhook *middleware.RateLimiter
	API     *middleware.RateLimiter
	Share   *middleware.RateLimiter
}

func NewLimiters(cfg config.RateLimitConfig) *Limiters {
	return &Limiters{
		Webhook: middleware.NewRateLimiter(cfg.WebhookRPS, cfg.WebhookBurst),
		API:     middleware.NewRateLimiter(cfg.APIRPS, cfg.APIBurst),
		Share:   middleware.NewRateLimiter(cfg.ShareRPS, cfg.ShareBurst),
	}
}

func (l *Limiters) Stop() {
	l.Webhook.Stop()
	l.API.Stop()
	l.Share.Stop()
}

func SetupRoutes(router *gin.Engine, services *service.Services, limiters *Limiters) {
	router.Use(middleware.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	webhookHandler := webhook.NewHandler(services.Ingest())
	WebhookRouter(router.Group("/webhooks", limiters.Webhook.Middleware()), webhookHandler)

	taskHandler := handler.NewTaskHandler(services.Tasks())
	packetHandler := handler.NewPacketHandler(services.Packets())
	workspaceHandler := handler.NewWorkspaceHandler(services.Workspaces())

	v1 := router.Group("/api/v1", limiters.API.Middleware())
	{
		TaskRouter(v1.Group("/tasks"), taskHandler, packetHandler)
		PacketRouter(v1.Group("/packets"), packetHandler)
		WorkspaceRouter(v1.Group("/workspaces"), workspaceHandler)
	}

	router.GET("/share/:token", limiters.Share.Middleware(), packetHandler.GetShared)
}
