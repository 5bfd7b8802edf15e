package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/parley/internal/models"
	"github.com/ammar1510/parley/internal/service"
)

// MessageHandler handles message-related routes
type MessageHandler struct {
	Ledger *service.Ledger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(ledger *service.Ledger) *MessageHandler {
	return &MessageHandler{Ledger: ledger}
}

// SendMessage handles the creation of a new message
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	message, err := h.Ledger.Send(c.Request.Context(), service.SendInput{
		SenderID: userID,
		ChatID:   req.ChatID,
		Content:  req.Content,
		Type:     req.Type,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// ListMessages returns every message of a chat, oldest first
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	chatID, ok := uuidParam(c, "chatID")
	if !ok {
		return
	}

	messages, err := h.Ledger.ListForChat(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// SearchMessages returns the chat's messages containing ?q=
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	chatID, ok := uuidParam(c, "chatID")
	if !ok {
		return
	}

	messages, err := h.Ledger.Search(c.Request.Context(), chatID, userID, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// MarkMessageAsRead marks a message as read by the caller
func (h *MessageHandler) MarkMessageAsRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "messageID")
	if !ok {
		return
	}

	message, err := h.Ledger.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}
