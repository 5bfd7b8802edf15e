package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/parley/internal/models"
	"github.com/ammar1510/parley/internal/service"
)

// ChatHandler handles direct chat and group routes
type ChatHandler struct {
	Directory *service.Directory
}

func NewChatHandler(directory *service.Directory) *ChatHandler {
	return &ChatHandler{Directory: directory}
}

// AccessChat opens the direct chat with another user, creating it if needed
func (h *ChatHandler) AccessChat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.DirectChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	chat, err := h.Directory.FindOrCreateDirect(c.Request.Context(), userID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondChat(c, http.StatusOK, chat)
}

// ListChats returns the caller's chats, most recent first
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	chats, err := h.Directory.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// CreateGroup creates a group administered by the caller
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.GroupChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	chat, err := h.Directory.CreateGroup(c.Request.Context(), req.Name, req.MemberIDs, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondChat(c, http.StatusCreated, chat)
}

// RenameGroup renames a group
func (h *ChatHandler) RenameGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	chatID, ok := uuidParam(c, "chatID")
	if !ok {
		return
	}

	var req models.RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	chat, err := h.Directory.RenameGroup(c.Request.Context(), chatID, userID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondChat(c, http.StatusOK, chat)
}

// AddMember adds a user to a group
func (h *ChatHandler) AddMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	chatID, ok := uuidParam(c, "chatID")
	if !ok {
		return
	}

	var req models.GroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	chat, err := h.Directory.AddMember(c.Request.Context(), chatID, userID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondChat(c, http.StatusOK, chat)
}

// RemoveMember removes a user from a group
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	chatID, ok := uuidParam(c, "chatID")
	if !ok {
		return
	}
	memberID, ok := uuidParam(c, "userID")
	if !ok {
		return
	}

	chat, err := h.Directory.RemoveMember(c.Request.Context(), chatID, userID, memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondChat(c, http.StatusOK, chat)
}

func (h *ChatHandler) respondChat(c *gin.Context, status int, chat *models.Chat) {
	view, err := h.Directory.View(c.Request.Context(), chat)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, view)
}
