package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ammar1510/parley/internal/apperr"
	"github.com/ammar1510/parley/internal/database"
	"github.com/ammar1510/parley/internal/models"
)

// SendInput is a message as submitted by its sender.
type SendInput struct {
	SenderID uuid.UUID
	ChatID   uuid.UUID
	Content  string
	Type     string
	Metadata json.RawMessage
}

// Ledger is the append-only message log of every chat.
type Ledger struct {
	messages  database.MessageStore
	directory *Directory
	clock     Clock
}

func NewLedger(messages database.MessageStore, directory *Directory, clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{messages: messages, directory: directory, clock: clock}
}

// Send appends a message to a chat the sender belongs to and moves the
// chat's latest-message pointer. If the pointer cannot be moved the message
// stays stored and ReconcileLatest repairs the chat later.
func (l *Ledger) Send(ctx context.Context, in SendInput) (*models.MessageView, error) {
	if strings.TrimSpace(in.Content) == "" || in.ChatID == uuid.Nil {
		return nil, apperr.Validation("invalid data passed into request")
	}
	msgType, err := models.ParseMessageType(in.Type)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	metadata, err := models.DecodeMetadata(msgType, in.Metadata)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if emoji, ok := metadata.(models.EmojiMetadata); ok && emoji.Code == "" {
		emoji.Code = in.Content
		metadata = emoji
	}

	chat, err := l.directory.GetChat(ctx, in.ChatID, in.SenderID)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Dependency("could not generate message id", err)
	}
	now := timestamp(l.clock)
	if chat.LatestMessageAt != nil && now.Before(*chat.LatestMessageAt) {
		now = *chat.LatestMessageAt
	}

	msg := &models.Message{
		ID:        id,
		SenderID:  in.SenderID,
		ChatID:    chat.ID,
		Content:   in.Content,
		Type:      msgType,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.messages.CreateMessage(ctx, msg); err != nil {
		if errors.Is(err, database.ErrChatNotFound) || errors.Is(err, database.ErrUserNotFound) {
			return nil, apperr.NotFound("chat not found")
		}
		return nil, storageFailure("create message", err)
	}

	if err := l.directory.SetLatestMessage(ctx, chat.ID, msg); err != nil {
		log.Error("Message %s stored but chat %s not updated: %v", msg.ID, chat.ID, err)
		return nil, apperr.Dependency("message stored but chat could not be updated", err)
	}

	chat, err = l.directory.GetChat(ctx, chat.ID, in.SenderID)
	if err != nil {
		return nil, err
	}
	views, err := l.views(ctx, chat, []*models.Message{msg})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListForChat returns the chat's messages oldest first.
func (l *Ledger) ListForChat(ctx context.Context, chatID, requesterID uuid.UUID) ([]*models.MessageView, error) {
	chat, err := l.directory.GetChat(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	messages, err := l.messages.ListMessagesByChat(ctx, chat.ID)
	if err != nil {
		return nil, storageFailure("list messages", err)
	}
	return l.views(ctx, chat, messages)
}

// MarkRead records that userID has read the message. Repeated calls have no
// further effect.
func (l *Ledger) MarkRead(ctx context.Context, messageID, userID uuid.UUID) (*models.MessageView, error) {
	msg, err := l.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	chat, err := l.directory.GetChat(ctx, msg.ChatID, userID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}

	if !msg.IsReadBy(userID) {
		err := l.messages.AddReadBy(ctx, messageID, userID, timestamp(l.clock))
		if errors.Is(err, database.ErrMessageNotFound) {
			return nil, apperr.NotFound("message not found")
		}
		if err != nil {
			return nil, storageFailure("mark read", err)
		}
		if msg, err = l.getMessage(ctx, messageID); err != nil {
			return nil, err
		}
	}

	views, err := l.views(ctx, chat, []*models.Message{msg})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// Search returns the chat's messages whose content contains query, ignoring
// case. No match is an empty result.
func (l *Ledger) Search(ctx context.Context, chatID, requesterID uuid.UUID, query string) ([]*models.MessageView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	chat, err := l.directory.GetChat(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	messages, err := l.messages.SearchMessages(ctx, chat.ID, query)
	if err != nil {
		return nil, storageFailure("search messages", err)
	}
	return l.views(ctx, chat, messages)
}

// ReconcileLatest points the chat at its newest stored message. It repairs
// chats whose pointer update failed after a successful append.
func (l *Ledger) ReconcileLatest(ctx context.Context, chatID uuid.UUID) error {
	msg, err := l.messages.LatestMessageByChat(ctx, chatID)
	if errors.Is(err, database.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return storageFailure("latest message", err)
	}
	return l.directory.SetLatestMessage(ctx, chatID, msg)
}

func (l *Ledger) getMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := l.messages.GetMessageByID(ctx, id)
	if errors.Is(err, database.ErrMessageNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, storageFailure("get message", err)
	}
	return msg, nil
}

func (l *Ledger) views(ctx context.Context, chat *models.Chat, messages []*models.Message) ([]*models.MessageView, error) {
	chatView, err := l.directory.View(ctx, chat)
	if err != nil {
		return nil, err
	}

	senderIDs := make([]uuid.UUID, 0, len(messages))
	for _, msg := range messages {
		senderIDs = append(senderIDs, msg.SenderID)
	}
	profiles, err := l.directory.profiles(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	views := make([]*models.MessageView, 0, len(messages))
	for _, msg := range messages {
		view := models.NewMessageView(msg, senderProfile(profiles, msg.SenderID))
		view.Chat = chatView
		views = append(views, view)
	}
	return views, nil
}
