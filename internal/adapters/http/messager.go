package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dkeye/Molian/internal/app/messager"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/gin-gonic/gin"
)

type messagerHandlers struct {
	svc *messager.Service
}

type createRoomRequest struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description *string         `json:"description"`
	MemberIDs   []domain.UserID `json:"member_ids"`
}

type sendMessageRequest struct {
	Content     string            `json:"content"`
	Nonce       *string           `json:"nonce"`
	Attachments json.RawMessage   `json:"attachments"`
	ReplyID     *domain.MessageID `json:"reply_id"`
	ForwardedID *domain.MessageID `json:"forwarded_id"`
	Meta        json.RawMessage   `json:"meta"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func roomParam(c *gin.Context) domain.RoomID {
	return domain.RoomID(c.Param("roomId"))
}

func messageParam(c *gin.Context) domain.MessageID {
	return domain.MessageID(c.Param("messageId"))
}

func (h *messagerHandlers) listRooms(c *gin.Context) {
	rooms, err := h.svc.ListRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *messagerHandlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	room, err := h.svc.CreateRoom(c.Request.Context(), currentUser(c), messager.CreateRoomInput{
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

func (h *messagerHandlers) directRoom(c *gin.Context) {
	room, created, err := h.svc.DirectRoom(c.Request.Context(), currentUser(c), domain.UserID(c.Param("peerId")))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"room": room})
}

func (h *messagerHandlers) getRoom(c *gin.Context) {
	room, err := h.svc.GetRoom(c.Request.Context(), currentUser(c), roomParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *messagerHandlers) listMessages(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	take, _ := strconv.Atoi(c.DefaultQuery("take", strconv.Itoa(messager.DefaultTake)))
	list, err := h.svc.ListMessages(c.Request.Context(), currentUser(c), roomParam(c), offset, take)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": list})
}

func (h *messagerHandlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), currentUser(c), roomParam(c), messager.SendInput{
		Content:     req.Content,
		Nonce:       req.Nonce,
		Attachments: req.Attachments,
		ReplyID:     req.ReplyID,
		ForwardedID: req.ForwardedID,
		Meta:        req.Meta,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *messagerHandlers) editMessage(c *gin.Context) {
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	msg, err := h.svc.EditMessage(c.Request.Context(), currentUser(c), roomParam(c), messageParam(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *messagerHandlers) deleteMessage(c *gin.Context) {
	if err := h.svc.DeleteMessage(c.Request.Context(), currentUser(c), roomParam(c), messageParam(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *messagerHandlers) addReaction(c *gin.Context) {
	if _, err := h.svc.AddReaction(c.Request.Context(), currentUser(c), roomParam(c), messageParam(c), c.Param("emoji")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *messagerHandlers) removeReaction(c *gin.Context) {
	if _, err := h.svc.RemoveReaction(c.Request.Context(), currentUser(c), roomParam(c), messageParam(c), c.Param("emoji")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
