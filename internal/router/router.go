package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"Pixel_Canvas/internal/handler"
	"Pixel_Canvas/internal/middleware"
	"Pixel_Canvas/internal/service"
)

// Services 路由依赖的服务集合，由 main 组装
type Services struct {
	Worlds     *service.WorldService
	Canvas     *service.CanvasService
	Placement  *service.PlacementService
	Moderation *service.ModerationService
	Clock      service.Clock
}

func InitRouter(svc Services, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog(log))

	worlds := handler.NewWorldHandler(svc.Worlds)
	canvas := handler.NewCanvasHandler(svc.Placement, svc.Canvas)
	bans := handler.NewBanHandler(svc.Moderation, svc.Clock)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"msg": "ok"}) })

	// 世界和画布只读接口
	worldGroup := r.Group("/api/worlds")
	{
		worldGroup.GET("", worlds.List)
		worldGroup.GET("/:world/palette", worlds.Palette)
		worldGroup.GET("/:world/pixels", canvas.GetPixel)
		worldGroup.GET("/:world/snapshot", canvas.Snapshot)
	}

	// 登录态接口
	authed := r.Group("/api")
	authed.Use(middleware.AuthMiddleware())
	{
		authed.POST("/worlds/:world/pixels", canvas.Place)
		authed.POST("/worlds/:world/pixels/batch", canvas.PlaceBatch)
		authed.GET("/charges", canvas.Charges)
	}

	// 管理接口
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware(svc.Moderation))
	{
		adminGroup.POST("/worlds", worlds.Create)
		adminGroup.DELETE("/worlds/:world", worlds.Delete)
		adminGroup.POST("/bans", bans.Ban)
		adminGroup.DELETE("/bans/:user", bans.Unban)
		adminGroup.GET("/bans", bans.List)
	}

	return r
}
