package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType tags the content of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeEmoji MessageType = "emoji"
	MessageTypeGIF   MessageType = "gif"
	MessageTypeImage MessageType = "image"
)

var ErrInvalidMetadata = errors.New("invalid message metadata")

// ParseMessageType maps user input to a MessageType. Empty input means text.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return MessageTypeText, nil
	case MessageTypeText, MessageTypeEmoji, MessageTypeGIF, MessageTypeImage:
		return t, nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// Metadata is the typed side-data of a message. The concrete type is
// determined by the message type.
type Metadata interface {
	MessageType() MessageType
}

// TextMetadata carries nothing.
type TextMetadata struct{}

func (TextMetadata) MessageType() MessageType { return MessageTypeText }

// EmojiMetadata carries the emoji code.
type EmojiMetadata struct {
	Code string `json:"code"`
}

func (EmojiMetadata) MessageType() MessageType { return MessageTypeEmoji }

// MediaMetadata describes a gif or image. The media URL is the message content.
type MediaMetadata struct {
	Kind   MessageType `json:"-"`
	Width  int         `json:"width,omitempty"`
	Height int         `json:"height,omitempty"`
	Title  string      `json:"title,omitempty"`
}

func (m MediaMetadata) MessageType() MessageType { return m.Kind }

// DecodeMetadata parses raw JSON side-data for the given message type.
// Empty, null and {} inputs yield the zero metadata for that type.
func DecodeMetadata(t MessageType, raw json.RawMessage) (Metadata, error) {
	raw = bytes.TrimSpace(raw)
	empty := len(raw) == 0 || bytes.Equal(raw, []byte("null"))

	switch t {
	case MessageTypeText:
		if empty {
			return TextMetadata{}, nil
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
		if len(fields) > 0 {
			return nil, fmt.Errorf("%w: text messages carry no metadata", ErrInvalidMetadata)
		}
		return TextMetadata{}, nil
	case MessageTypeEmoji:
		var m EmojiMetadata
		if !empty {
			if err := strictUnmarshal(raw, &m); err != nil {
				return nil, err
			}
		}
		return m, nil
	case MessageTypeGIF, MessageTypeImage:
		m := MediaMetadata{Kind: t}
		if !empty {
			if err := strictUnmarshal(raw, &m); err != nil {
				return nil, err
			}
		}
		if m.Width < 0 || m.Height < 0 {
			return nil, fmt.Errorf("%w: dimensions must not be negative", ErrInvalidMetadata)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidMetadata, t)
	}
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return nil
}

// Message represents a chat message in the system
type Message struct {
	ID        uuid.UUID   `json:"id"`
	SenderID  uuid.UUID   `json:"sender_id"`
	ChatID    uuid.UUID   `json:"chat_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"message_type"`
	Metadata  Metadata    `json:"metadata"`
	ReadBy    []uuid.UUID `json:"read_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// After reports whether m sorts after other in a chat's timeline.
func (m *Message) After(other *Message) bool {
	if other == nil {
		return true
	}
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.After(other.CreatedAt)
	}
	return bytes.Compare(m.ID[:], other.ID[:]) > 0
}

// IsReadBy reports whether userID is already in the read-by set.
func (m *Message) IsReadBy(userID uuid.UUID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MessageRequest is the structure for message creation requests
type MessageRequest struct {
	ChatID   uuid.UUID       `json:"chat_id" binding:"required"`
	Content  string          `json:"content" binding:"required"`
	Type     string          `json:"message_type"`
	Metadata json.RawMessage `json:"metadata"`
}

// MessageView is a message joined with its sender and, optionally, its chat.
type MessageView struct {
	ID        uuid.UUID     `json:"id"`
	Sender    SenderProfile `json:"sender"`
	ChatID    uuid.UUID     `json:"chat_id"`
	Chat      *ChatView     `json:"chat,omitempty"`
	Content   string        `json:"content"`
	Type      MessageType   `json:"message_type"`
	Metadata  Metadata      `json:"metadata"`
	ReadBy    []uuid.UUID   `json:"read_by"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewMessageView joins msg with its sender profile.
func NewMessageView(msg *Message, sender SenderProfile) *MessageView {
	readBy := msg.ReadBy
	if readBy == nil {
		readBy = []uuid.UUID{}
	}
	return &MessageView{
		ID:        msg.ID,
		Sender:    sender,
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		Type:      msg.Type,
		Metadata:  msg.Metadata,
		ReadBy:    readBy,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
}
