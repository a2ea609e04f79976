package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dkeye/Molian/internal/app/orch"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/dkeye/Molian/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type internalHandlers struct {
	orch *orch.Orchestrator
}

type broadcastRequest struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// broadcast is the trigger for events persisted by another process. The
// event is already stored, so a failed fan-out is logged and still
// acknowledged.
func (h *internalHandlers) broadcast(c *gin.Context) {
	room := domain.RoomID(c.Param("roomId"))
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	event, err := protocol.ParseEventType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Message) == 0 || string(req.Message) == "null" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room id is required"})
		return
	}

	res, err := h.orch.Broadcast(context.WithoutCancel(c.Request.Context()), room, event, req.Message)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("internal broadcast failed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sent_to": res.SendTo})
}

func (h *internalHandlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Stats())
}
