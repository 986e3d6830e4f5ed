package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/adapters/signal"
	"github.com/MRCCollective/Babbler/internal/config"
	"github.com/MRCCollective/Babbler/internal/metrics"
)

func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers, ws *signal.WSController, m *metrics.Metrics, refreshGauges func()) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/display/:roomId", h.DisplayPage)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler(refreshGauges)))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms", h.ListRooms)
	api.GET("/rooms/:roomId/access", h.AccessInfo)
	api.POST("/rooms/:roomId/verify-pin", h.VerifyPin)
	api.GET("/rooms/:roomId/status", h.Status)
	api.POST("/rooms/:roomId/start", h.Start)
	api.POST("/rooms/:roomId/language", h.SetLanguage)
	api.POST("/rooms/:roomId/stop", h.Stop)
	api.GET("/speech/token", h.SpeechToken)
	api.GET("/languages", h.Languages)

	api.GET("/ws/rooms/:roomId", func(c *gin.Context) {
		ws.HandleRoom(ctx, c)
	})

	return r
}
