package database

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/parley/internal/models"
)

// MemoryDB keeps everything in process memory. It is used by tests and by
// DB_TYPE=memory for local development. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryDB struct {
	mu sync.RWMutex

	users      map[uuid.UUID]*models.User
	emails     map[string]uuid.UUID
	chats      map[uuid.UUID]*models.Chat
	directKeys map[string]uuid.UUID
	messages   map[uuid.UUID]*models.Message
	byChat     map[uuid.UUID][]uuid.UUID
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:      make(map[uuid.UUID]*models.User),
		emails:     make(map[string]uuid.UUID),
		chats:      make(map[uuid.UUID]*models.Chat),
		directKeys: make(map[string]uuid.UUID),
		messages:   make(map[uuid.UUID]*models.Message),
		byChat:     make(map[uuid.UUID][]uuid.UUID),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (db *MemoryDB) CreateUser(ctx context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := emailKey(user.Email)
	if _, taken := db.emails[key]; taken {
		return ErrUserAlreadyExists
	}
	if _, taken := db.users[user.ID]; taken {
		return ErrUserAlreadyExists
	}
	db.users[user.ID] = cloneUser(user)
	db.emails[key] = user.ID
	return nil
}

func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.emails[emailKey(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(db.users[id]), nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	user, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (db *MemoryDB) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := make([]*models.User, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if user, ok := db.users[id]; ok {
			users = append(users, cloneUser(user))
		}
	}
	return users, nil
}

func (db *MemoryDB) SearchUsers(ctx context.Context, query string, excludeUserID uuid.UUID) ([]*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	needle := strings.ToLower(query)
	var users []*models.User
	for _, user := range db.users {
		if user.ID == excludeUserID {
			continue
		}
		if strings.Contains(strings.ToLower(user.Name), needle) || strings.Contains(strings.ToLower(user.Email), needle) {
			users = append(users, cloneUser(user))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (db *MemoryDB) UpdateUser(ctx context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, ok := db.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	oldKey, newKey := emailKey(stored.Email), emailKey(user.Email)
	if oldKey != newKey {
		if _, taken := db.emails[newKey]; taken {
			return ErrUserAlreadyExists
		}
		delete(db.emails, oldKey)
		db.emails[newKey] = user.ID
	}
	stored.Name = user.Name
	stored.Email = user.Email
	stored.AvatarURL = user.AvatarURL
	stored.PasswordHash = user.PasswordHash
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

func (db *MemoryDB) SetResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiry time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	hash := tokenHash
	user.ResetTokenHash = &hash
	user.ResetTokenExpiry = &expiry
	return nil
}

func (db *MemoryDB) ClearResetToken(ctx context.Context, userID uuid.UUID, tokenHash string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash {
		user.ResetTokenHash = nil
		user.ResetTokenExpiry = nil
	}
	return nil
}

func (db *MemoryDB) ClearExpiredResetToken(ctx context.Context, tokenHash string, now time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, user := range db.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash &&
			user.ResetTokenExpiry != nil && !user.ResetTokenExpiry.After(now) {
			user.ResetTokenHash = nil
			user.ResetTokenExpiry = nil
		}
	}
	return nil
}

func (db *MemoryDB) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, user := range db.users {
		if user.ResetTokenHash == nil || *user.ResetTokenHash != tokenHash {
			continue
		}
		if user.ResetTokenExpiry == nil || !user.ResetTokenExpiry.After(now) {
			return nil, ErrResetTokenInvalid
		}
		user.PasswordHash = passwordHash
		user.ResetTokenHash = nil
		user.ResetTokenExpiry = nil
		user.UpdatedAt = now
		return cloneUser(user), nil
	}
	return nil, ErrResetTokenInvalid
}

func (db *MemoryDB) CreateChat(ctx context.Context, chat *models.Chat) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !chat.IsGroup {
		if len(chat.MemberIDs) != 2 {
			return fmt.Errorf("direct chat needs exactly two members, got %d", len(chat.MemberIDs))
		}
		key := models.DirectKey(chat.MemberIDs[0], chat.MemberIDs[1])
		if _, exists := db.directKeys[key]; exists {
			return ErrChatAlreadyExists
		}
		db.directKeys[key] = chat.ID
	}
	db.chats[chat.ID] = cloneChat(chat)
	return nil
}

func (db *MemoryDB) GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	chat, ok := db.chats[id]
	if !ok {
		return nil, ErrChatNotFound
	}
	return cloneChat(chat), nil
}

func (db *MemoryDB) FindDirectChat(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.directKeys[models.DirectKey(userA, userB)]
	if !ok {
		return nil, ErrChatNotFound
	}
	return cloneChat(db.chats[id]), nil
}

func (db *MemoryDB) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var chats []*models.Chat
	for _, chat := range db.chats {
		if chat.HasMember(userID) {
			chats = append(chats, cloneChat(chat))
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		switch {
		case a.LatestMessageAt != nil && b.LatestMessageAt != nil:
			if !a.LatestMessageAt.Equal(*b.LatestMessageAt) {
				return a.LatestMessageAt.After(*b.LatestMessageAt)
			}
		case a.LatestMessageAt != nil:
			return true
		case b.LatestMessageAt != nil:
			return false
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return chats, nil
}

func (db *MemoryDB) UpdateChat(ctx context.Context, chat *models.Chat) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, ok := db.chats[chat.ID]
	if !ok {
		return ErrChatNotFound
	}
	stored.Name = chat.Name
	stored.AdminID = cloneUUIDPtr(chat.AdminID)
	stored.MemberIDs = append([]uuid.UUID(nil), chat.MemberIDs...)
	stored.UpdatedAt = chat.UpdatedAt
	return nil
}

func (db *MemoryDB) SetLatestMessage(ctx context.Context, chatID, messageID uuid.UUID, createdAt time.Time) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	chat, ok := db.chats[chatID]
	if !ok {
		return false, ErrChatNotFound
	}
	if chat.LatestMessageAt != nil && chat.LatestMessageID != nil {
		if createdAt.Before(*chat.LatestMessageAt) {
			return false, nil
		}
		if createdAt.Equal(*chat.LatestMessageAt) && bytes.Compare(messageID[:], chat.LatestMessageID[:]) <= 0 {
			return false, nil
		}
	}
	id, at := messageID, createdAt
	chat.LatestMessageID = &id
	chat.LatestMessageAt = &at
	chat.UpdatedAt = createdAt
	return true, nil
}

func (db *MemoryDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.chats[msg.ChatID]; !ok {
		return ErrChatNotFound
	}
	if _, ok := db.users[msg.SenderID]; !ok {
		return ErrUserNotFound
	}
	db.messages[msg.ID] = cloneMessage(msg)
	db.byChat[msg.ChatID] = append(db.byChat[msg.ChatID], msg.ID)
	return nil
}

func (db *MemoryDB) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	msg, ok := db.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (db *MemoryDB) ListMessagesByChat(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	return db.filterMessages(chatID, func(*models.Message) bool { return true }), nil
}

func (db *MemoryDB) LatestMessageByChat(ctx context.Context, chatID uuid.UUID) (*models.Message, error) {
	messages := db.filterMessages(chatID, func(*models.Message) bool { return true })
	if len(messages) == 0 {
		return nil, ErrMessageNotFound
	}
	return messages[len(messages)-1], nil
}

func (db *MemoryDB) AddReadBy(ctx context.Context, messageID, userID uuid.UUID, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	msg, ok := db.messages[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	if _, ok := db.users[userID]; !ok {
		return ErrUserNotFound
	}
	if !msg.IsReadBy(userID) {
		msg.ReadBy = append(msg.ReadBy, userID)
	}
	return nil
}

func (db *MemoryDB) SearchMessages(ctx context.Context, chatID uuid.UUID, query string) ([]*models.Message, error) {
	needle := strings.ToLower(query)
	return db.filterMessages(chatID, func(m *models.Message) bool {
		return strings.Contains(strings.ToLower(m.Content), needle)
	}), nil
}

func (db *MemoryDB) filterMessages(chatID uuid.UUID, keep func(*models.Message) bool) []*models.Message {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var messages []*models.Message
	for _, id := range db.byChat[chatID] {
		if msg := db.messages[id]; keep(msg) {
			messages = append(messages, cloneMessage(msg))
		}
	}
	sort.SliceStable(messages, func(i, j int) bool { return messages[j].After(messages[i]) })
	return messages
}

func (db *MemoryDB) Close() error {
	return nil
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	if u.ResetTokenHash != nil {
		hash := *u.ResetTokenHash
		cp.ResetTokenHash = &hash
	}
	if u.ResetTokenExpiry != nil {
		expiry := *u.ResetTokenExpiry
		cp.ResetTokenExpiry = &expiry
	}
	return &cp
}

func cloneChat(c *models.Chat) *models.Chat {
	cp := *c
	cp.MemberIDs = append([]uuid.UUID(nil), c.MemberIDs...)
	cp.AdminID = cloneUUIDPtr(c.AdminID)
	cp.LatestMessageID = cloneUUIDPtr(c.LatestMessageID)
	if c.LatestMessageAt != nil {
		at := *c.LatestMessageAt
		cp.LatestMessageAt = &at
	}
	return &cp
}

func cloneMessage(m *models.Message) *models.Message {
	cp := *m
	cp.ReadBy = append([]uuid.UUID(nil), m.ReadBy...)
	return &cp
}

func cloneUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
