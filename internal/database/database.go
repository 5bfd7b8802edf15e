package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/parley/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrChatNotFound      = errors.New("chat not found")
	ErrChatAlreadyExists = errors.New("chat already exists")
	ErrMessageNotFound   = errors.New("message not found")
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
)

// UserStore persists user records and their reset-token fields.
type UserStore interface {
	// CreateUser inserts user. It returns ErrUserAlreadyExists when the
	// email is taken, compared case-insensitively.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error)
	SearchUsers(ctx context.Context, query string, excludeUserID uuid.UUID) ([]*models.User, error)
	// UpdateUser writes name, email, avatar, password hash and updated_at.
	UpdateUser(ctx context.Context, user *models.User) error

	// SetResetToken stores a pending reset token, replacing any previous one.
	SetResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiry time.Time) error
	// ClearResetToken removes the pending token only if it still equals tokenHash.
	ClearResetToken(ctx context.Context, userID uuid.UUID, tokenHash string) error
	// ClearExpiredResetToken removes tokenHash if it expired at or before now.
	ClearExpiredResetToken(ctx context.Context, tokenHash string, now time.Time) error
	// ConsumeResetToken atomically matches tokenHash with expiry after now,
	// sets passwordHash and clears the reset fields. It returns
	// ErrResetTokenInvalid when nothing matched.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*models.User, error)
}

// ChatStore persists chats, their members and the latest-message pointer.
type ChatStore interface {
	// CreateChat inserts chat with its members. Direct chats return
	// ErrChatAlreadyExists when a chat with the same member pair exists.
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	FindDirectChat(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error)
	// ListChatsForUser orders by latest message time, newest first; chats
	// without messages come last, newest first.
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error)
	UpdateChat(ctx context.Context, chat *models.Chat) error
	// SetLatestMessage moves the pointer to (messageID, createdAt) only if
	// that pair sorts after the stored one. It reports whether it moved.
	SetLatestMessage(ctx context.Context, chatID, messageID uuid.UUID, createdAt time.Time) (bool, error)
}

// MessageStore persists append-only messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// ListMessagesByChat returns messages ascending by (created_at, id).
	ListMessagesByChat(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error)
	LatestMessageByChat(ctx context.Context, chatID uuid.UUID) (*models.Message, error)
	// AddReadBy is idempotent.
	AddReadBy(ctx context.Context, messageID, userID uuid.UUID, at time.Time) error
	// SearchMessages matches content case-insensitively as a substring.
	SearchMessages(ctx context.Context, chatID uuid.UUID, query string) ([]*models.Message, error)
}

type DBInterface interface {
	UserStore
	ChatStore
	MessageStore

	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	Memory     DatabaseType = "memory"
)

func NewDatabase(ctx context.Context, dbType DatabaseType, connStr string) (DBInterface, error) {
	switch dbType {
	case PostgreSQL:
		db, err := NewPostgresDB(ctx, connStr)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
