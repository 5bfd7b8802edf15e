package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver

	"github.com/ammar1510/parley/internal/logger"
	"github.com/ammar1510/parley/internal/models"
)

var log = logger.New("database")

const uniqueViolation = "23505"

// Foreign key names, matching what Postgres generates for inline REFERENCES.
const (
	messagesChatFK        = "messages_chat_id_fkey"
	messageReadsMessageFK = "message_reads_message_id_fkey"
)

type PostgresDB struct {
	*sql.DB
}

func NewPostgresDB(ctx context.Context, connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresDB{db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		reset_token_hash TEXT,
		reset_token_expiry TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))`,
	`CREATE INDEX IF NOT EXISTS users_reset_token_idx ON users (reset_token_hash) WHERE reset_token_hash IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS chats (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		admin_id UUID REFERENCES users(id),
		direct_key TEXT UNIQUE,
		latest_message_id UUID,
		latest_message_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_members (
		chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id),
		position INT NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS chat_members_user_idx ON chat_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		sender_id UUID NOT NULL REFERENCES users(id),
		chat_id UUID NOT NULL CONSTRAINT messages_chat_id_fkey REFERENCES chats(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_chat_order_idx ON messages (chat_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS message_reads (
		message_id UUID NOT NULL CONSTRAINT message_reads_message_id_fkey REFERENCES messages(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id),
		read_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info("Schema is up to date")
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const userColumns = `id, name, email, password_hash, avatar_url, is_admin,
	reset_token_hash, reset_token_expiry, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var tokenHash sql.NullString
	var tokenExpiry sql.NullTime

	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.AvatarURL, &user.IsAdmin,
		&tokenHash, &tokenExpiry, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if tokenHash.Valid {
		user.ResetTokenHash = &tokenHash.String
	}
	if tokenExpiry.Valid {
		user.ResetTokenExpiry = &tokenExpiry.Time
	}
	return &user, nil
}

func (db *PostgresDB) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, avatar_url, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.AvatarURL, user.IsAdmin, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	return err
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email)))
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (db *PostgresDB) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return db.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, uuidArray(ids))
}

func (db *PostgresDB) SearchUsers(ctx context.Context, query string, excludeUserID uuid.UUID) ([]*models.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	return db.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		WHERE id <> $1 AND (name ILIKE $2 OR email ILIKE $2)
		ORDER BY name`,
		excludeUserID, pattern)
}

func (db *PostgresDB) UpdateUser(ctx context.Context, user *models.User) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET name = $2, email = $3, avatar_url = $4, password_hash = $5, updated_at = $6 WHERE id = $1`,
		user.ID, user.Name, user.Email, user.AvatarURL, user.PasswordHash, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	return requireRow(result, err, ErrUserNotFound)
}

func (db *PostgresDB) SetResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiry time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = $2, reset_token_expiry = $3 WHERE id = $1`,
		userID, tokenHash, expiry,
	)
	return requireRow(result, err, ErrUserNotFound)
}

func (db *PostgresDB) ClearResetToken(ctx context.Context, userID uuid.UUID, tokenHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = NULL, reset_token_expiry = NULL
		WHERE id = $1 AND reset_token_hash = $2`,
		userID, tokenHash,
	)
	return err
}

func (db *PostgresDB) ClearExpiredResetToken(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = NULL, reset_token_expiry = NULL
		WHERE reset_token_hash = $1 AND reset_token_expiry <= $2`,
		tokenHash, now,
	)
	return err
}

func (db *PostgresDB) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx,
		`UPDATE users
		SET password_hash = $3, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = $2
		WHERE reset_token_hash = $1 AND reset_token_expiry > $2
		RETURNING `+userColumns,
		tokenHash, now, passwordHash,
	))
	if err == sql.ErrNoRows {
		return nil, ErrResetTokenInvalid
	}
	return user, err
}

const chatColumns = `c.id, c.name, c.is_group, c.admin_id, c.latest_message_id, c.latest_message_at,
	c.created_at, c.updated_at,
	ARRAY(SELECT m.user_id::text FROM chat_members m WHERE m.chat_id = c.id ORDER BY m.position)`

func scanChat(row rowScanner) (*models.Chat, error) {
	var chat models.Chat
	var adminID, latestID uuid.NullUUID
	var latestAt sql.NullTime
	var members pq.StringArray

	err := row.Scan(&chat.ID, &chat.Name, &chat.IsGroup, &adminID, &latestID, &latestAt,
		&chat.CreatedAt, &chat.UpdatedAt, &members)
	if err != nil {
		return nil, err
	}

	if adminID.Valid {
		chat.AdminID = &adminID.UUID
	}
	if latestID.Valid {
		chat.LatestMessageID = &latestID.UUID
	}
	if latestAt.Valid {
		chat.LatestMessageAt = &latestAt.Time
	}
	if chat.MemberIDs, err = parseUUIDs(members); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (db *PostgresDB) CreateChat(ctx context.Context, chat *models.Chat) error {
	var directKey sql.NullString
	if !chat.IsGroup {
		if len(chat.MemberIDs) != 2 {
			return fmt.Errorf("direct chat needs exactly two members, got %d", len(chat.MemberIDs))
		}
		directKey = sql.NullString{String: models.DirectKey(chat.MemberIDs[0], chat.MemberIDs[1]), Valid: true}
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chats (id, name, is_group, admin_id, direct_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			chat.ID, chat.Name, chat.IsGroup, nullUUID(chat.AdminID), directKey, chat.CreatedAt, chat.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return ErrChatAlreadyExists
		}
		if err != nil {
			return err
		}
		return insertMembers(ctx, tx, chat.ID, chat.MemberIDs)
	})
}

func insertMembers(ctx context.Context, tx *sql.Tx, chatID uuid.UUID, members []uuid.UUID) error {
	for i, userID := range members {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id, position) VALUES ($1, $2, $3)`,
			chatID, userID, i,
		)
		if err != nil {
			return fmt.Errorf("insert member %s: %w", userID, err)
		}
	}
	return nil
}

func (db *PostgresDB) GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat, err := scanChat(db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrChatNotFound
	}
	return chat, err
}

func (db *PostgresDB) FindDirectChat(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	chat, err := scanChat(db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats c WHERE c.direct_key = $1`, models.DirectKey(userA, userB)))
	if err == sql.ErrNoRows {
		return nil, ErrChatNotFound
	}
	return chat, err
}

func (db *PostgresDB) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id AND cm.user_id = $1
		ORDER BY c.latest_message_at DESC NULLS LAST, c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, chat)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return chats, nil
}

func (db *PostgresDB) UpdateChat(ctx context.Context, chat *models.Chat) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE chats SET name = $2, admin_id = $3, updated_at = $4 WHERE id = $1`,
			chat.ID, chat.Name, nullUUID(chat.AdminID), chat.UpdatedAt,
		)
		if err := requireRow(result, err, ErrChatNotFound); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id = $1`, chat.ID); err != nil {
			return err
		}
		return insertMembers(ctx, tx, chat.ID, chat.MemberIDs)
	})
}

func (db *PostgresDB) SetLatestMessage(ctx context.Context, chatID, messageID uuid.UUID, createdAt time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE chats SET latest_message_id = $2, latest_message_at = $3, updated_at = $3
		WHERE id = $1 AND (
			latest_message_at IS NULL
			OR latest_message_at < $3
			OR (latest_message_at = $3 AND latest_message_id < $2)
		)`,
		chatID, messageID, createdAt,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM chats WHERE id = $1)`, chatID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrChatNotFound
	}
	return false, nil
}

const messageColumns = `m.id, m.sender_id, m.chat_id, m.content, m.message_type, m.metadata,
	m.created_at, m.updated_at,
	ARRAY(SELECT r.user_id::text FROM message_reads r WHERE r.message_id = m.id ORDER BY r.read_at, r.user_id)`

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var msgType string
	var metadata []byte
	var readBy pq.StringArray

	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ChatID, &msg.Content, &msgType, &metadata,
		&msg.CreatedAt, &msg.UpdatedAt, &readBy)
	if err != nil {
		return nil, err
	}

	msg.Type = models.MessageType(msgType)
	if msg.Metadata, err = models.DecodeMetadata(msg.Type, metadata); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	if msg.ReadBy, err = parseUUIDs(readBy); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (db *PostgresDB) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (db *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, chat_id, content, message_type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.SenderID, msg.ChatID, msg.Content, string(msg.Type), metadata, msg.CreatedAt, msg.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		if pqErr.Constraint == messagesChatFK {
			return ErrChatNotFound
		}
		return ErrUserNotFound
	}
	return err
}

func (db *PostgresDB) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	return msg, err
}

func (db *PostgresDB) ListMessagesByChat(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	return db.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.chat_id = $1 ORDER BY m.created_at, m.id`, chatID)
}

func (db *PostgresDB) LatestMessageByChat(ctx context.Context, chatID uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.chat_id = $1
		ORDER BY m.created_at DESC, m.id DESC LIMIT 1`, chatID))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	return msg, err
}

func (db *PostgresDB) AddReadBy(ctx context.Context, messageID, userID uuid.UUID, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID, at,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		if pqErr.Constraint == messageReadsMessageFK {
			return ErrMessageNotFound
		}
		return ErrUserNotFound
	}
	return err
}

func (db *PostgresDB) SearchMessages(ctx context.Context, chatID uuid.UUID, query string) ([]*models.Message, error) {
	return db.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages m
		WHERE m.chat_id = $1 AND m.content ILIKE $2
		ORDER BY m.created_at, m.id`,
		chatID, "%"+escapeLike(query)+"%")
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

func (db *PostgresDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn("Rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func requireRow(result sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func encodeMetadata(m models.Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func uuidArray(ids []uuid.UUID) any {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return pq.Array(strs)
}

func parseUUIDs(strs []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(strs))
	for _, s := range strs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse uuid %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
