package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Chat is either a direct conversation between two users or a named group.
type Chat struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name,omitempty"`
	IsGroup         bool        `json:"is_group"`
	AdminID         *uuid.UUID  `json:"admin_id,omitempty"`
	MemberIDs       []uuid.UUID `json:"member_ids"`
	LatestMessageID *uuid.UUID  `json:"latest_message_id,omitempty"`
	LatestMessageAt *time.Time  `json:"latest_message_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// HasMember reports whether userID belongs to the chat.
func (c *Chat) HasMember(userID uuid.UUID) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID administers the group.
func (c *Chat) IsAdmin(userID uuid.UUID) bool {
	return c.IsGroup && c.AdminID != nil && *c.AdminID == userID
}

// DirectKey returns the canonical key of a direct chat between a and b.
// It does not depend on argument order.
func DirectKey(a, b uuid.UUID) string {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}

// DirectChatRequest opens (or reopens) a direct chat with another user.
type DirectChatRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// GroupChatRequest creates a named group.
type GroupChatRequest struct {
	Name      string      `json:"name" binding:"required"`
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required"`
}

// RenameGroupRequest changes a group's name.
type RenameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// GroupMemberRequest adds a user to a group.
type GroupMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// ChatView is a chat joined with member profiles and its latest message.
type ChatView struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name,omitempty"`
	IsGroup       bool           `json:"is_group"`
	Admin         *UserResponse  `json:"admin,omitempty"`
	Members       []UserResponse `json:"members"`
	LatestMessage *MessageView   `json:"latest_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
