package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Molian/internal/adapters/signal"
	"github.com/dkeye/Molian/internal/app/messager"
	"github.com/dkeye/Molian/internal/app/orch"
	"github.com/dkeye/Molian/internal/config"
	"github.com/dkeye/Molian/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func newEngine(mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}
	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	return r
}

// SetupRouter builds the public surface: health, the socket endpoint and
// the messager REST group.
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController, svc *messager.Service, verifier core.Verifier) *gin.Engine {
	r := newEngine(cfg.Mode)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	h := &messagerHandlers{svc: svc}
	api := r.Group("/messager", AuthMiddleware(verifier))
	api.GET("/chat", h.listRooms)
	api.POST("/chat", h.createRoom)
	api.POST("/chat/direct/:peerId", h.directRoom)
	api.GET("/chat/:roomId", h.getRoom)
	api.GET("/chat/:roomId/messages", h.listMessages)
	api.POST("/chat/:roomId/messages", h.sendMessage)
	api.PATCH("/chat/:roomId/messages/:messageId", h.editMessage)
	api.DELETE("/chat/:roomId/messages/:messageId", h.deleteMessage)
	api.PUT("/chat/:roomId/messages/:messageId/reactions/:emoji", h.addReaction)
	api.DELETE("/chat/:roomId/messages/:messageId/reactions/:emoji", h.removeReaction)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// SetupInternalRouter builds the trigger surface. It must only be bound to
// a private address.
func SetupInternalRouter(mode string, o *orch.Orchestrator) *gin.Engine {
	r := newEngine(mode)
	h := &internalHandlers{orch: o}
	r.POST("/broadcast/:roomId", h.broadcast)
	r.GET("/stats", h.stats)

	log.Info().Str("module", "adapters.http").Msg("internal router setup")
	return r
}
