package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/parley/internal/models"
)

// runStoreSuite exercises the behaviour every DBInterface implementation
// must share. newDB must return an empty store.
func runStoreSuite(t *testing.T, newDB func(t *testing.T) DBInterface) {
	t.Run("users", func(t *testing.T) { testUsers(t, newDB(t)) })
	t.Run("reset tokens", func(t *testing.T) { testResetTokens(t, newDB(t)) })
	t.Run("chats", func(t *testing.T) { testChats(t, newDB(t)) })
	t.Run("latest message pointer", func(t *testing.T) { testLatestMessage(t, newDB(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newDB(t)) })
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newUser(name, email string) *models.User {
	return &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: "hash-" + name,
		AvatarURL:    models.DefaultAvatarURL,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func mustCreateUser(t *testing.T, db DBInterface, name, email string) *models.User {
	t.Helper()
	user := newUser(name, email)
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

func mustCreateChat(t *testing.T, db DBInterface, group bool, members ...*models.User) *models.Chat {
	t.Helper()
	chat := &models.Chat{ID: uuid.New(), IsGroup: group, CreatedAt: base, UpdatedAt: base}
	for _, m := range members {
		chat.MemberIDs = append(chat.MemberIDs, m.ID)
	}
	if group {
		chat.Name = "group"
		chat.AdminID = &members[0].ID
	}
	require.NoError(t, db.CreateChat(context.Background(), chat))
	return chat
}

func testUsers(t *testing.T, db DBInterface) {
	ctx := context.Background()
	alice := mustCreateUser(t, db, "Alice", "alice@example.com")
	bob := mustCreateUser(t, db, "Bob", "bob@example.com")

	err := db.CreateUser(ctx, newUser("Imposter", "ALICE@example.com"))
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	got, err := db.GetUserByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = db.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = db.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := db.GetUsersByIDs(ctx, []uuid.UUID{alice.ID, bob.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	found, err := db.SearchUsers(ctx, "ali", bob.ID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, alice.ID, found[0].ID)

	found, err = db.SearchUsers(ctx, "example", alice.ID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].ID)

	bob.Name = "Robert"
	bob.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, db.UpdateUser(ctx, bob))
	got, err = db.GetUserByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.Name)

	bob.Email = "alice@example.com"
	assert.ErrorIs(t, db.UpdateUser(ctx, bob), ErrUserAlreadyExists)

	assert.ErrorIs(t, db.UpdateUser(ctx, newUser("Ghost", "ghost@example.com")), ErrUserNotFound)
}

func testResetTokens(t *testing.T, db DBInterface) {
	ctx := context.Background()
	alice := mustCreateUser(t, db, "Alice", "alice@example.com")
	expiry := base.Add(10 * time.Minute)

	require.NoError(t, db.SetResetToken(ctx, alice.ID, "first", expiry))
	require.NoError(t, db.SetResetToken(ctx, alice.ID, "second", expiry))

	_, err := db.ConsumeResetToken(ctx, "first", base, "new-hash")
	assert.ErrorIs(t, err, ErrResetTokenInvalid, "replaced token must not match")

	require.NoError(t, db.ClearResetToken(ctx, alice.ID, "first"))
	got, err := db.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResetTokenHash, "clearing a stale hash must keep the newer one")
	assert.Equal(t, "second", *got.ResetTokenHash)

	user, err := db.ConsumeResetToken(ctx, "second", base.Add(time.Minute), "new-hash")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", user.PasswordHash)
	assert.Nil(t, user.ResetTokenHash)

	_, err = db.ConsumeResetToken(ctx, "second", base.Add(time.Minute), "again")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)

	require.NoError(t, db.SetResetToken(ctx, alice.ID, "stale", expiry))
	_, err = db.ConsumeResetToken(ctx, "stale", expiry, "late")
	assert.ErrorIs(t, err, ErrResetTokenInvalid, "expiry is exclusive")

	require.NoError(t, db.ClearExpiredResetToken(ctx, "stale", expiry.Add(time.Second)))
	got, err = db.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ResetTokenHash)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func testChats(t *testing.T, db DBInterface) {
	ctx := context.Background()
	alice := mustCreateUser(t, db, "Alice", "alice@example.com")
	bob := mustCreateUser(t, db, "Bob", "bob@example.com")
	carol := mustCreateUser(t, db, "Carol", "carol@example.com")

	direct := mustCreateChat(t, db, false, alice, bob)

	dup := &models.Chat{ID: uuid.New(), MemberIDs: []uuid.UUID{bob.ID, alice.ID}, CreatedAt: base, UpdatedAt: base}
	assert.ErrorIs(t, db.CreateChat(ctx, dup), ErrChatAlreadyExists)

	found, err := db.FindDirectChat(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, direct.ID, found.ID)

	_, err = db.FindDirectChat(ctx, alice.ID, carol.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)

	group := mustCreateChat(t, db, true, alice, bob, carol)
	got, err := db.GetChatByID(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice.ID, bob.ID, carol.ID}, got.MemberIDs)
	assert.True(t, got.IsAdmin(alice.ID))

	got.Name = "renamed"
	got.MemberIDs = []uuid.UUID{alice.ID, carol.ID}
	got.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, db.UpdateChat(ctx, got))

	got, err = db.GetChatByID(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.False(t, got.HasMember(bob.ID))

	_, err = db.GetChatByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrChatNotFound)

	chats, err := db.ListChatsForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, group.ID, chats[0].ID, "most recently updated chat without messages comes first")

	_, err = db.SetLatestMessage(ctx, direct.ID, uuid.New(), base.Add(2*time.Hour))
	require.NoError(t, err)
	chats, err = db.ListChatsForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, direct.ID, chats[0].ID, "chats with messages come first")

	chats, err = db.ListChatsForUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func testLatestMessage(t *testing.T, db DBInterface) {
	ctx := context.Background()
	alice := mustCreateUser(t, db, "Alice", "alice@example.com")
	bob := mustCreateUser(t, db, "Bob", "bob@example.com")
	chat := mustCreateChat(t, db, false, alice, bob)

	older, newer := uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())

	moved, err := db.SetLatestMessage(ctx, chat.ID, newer, base.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = db.SetLatestMessage(ctx, chat.ID, older, base)
	require.NoError(t, err)
	assert.False(t, moved, "an older message must not move the pointer back")

	moved, err = db.SetLatestMessage(ctx, chat.ID, older, base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, moved, "ties break on id")

	got, err := db.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LatestMessageID)
	assert.Equal(t, newer, *got.LatestMessageID)

	_, err = db.SetLatestMessage(ctx, uuid.New(), newer, base)
	assert.ErrorIs(t, err, ErrChatNotFound)

	// Concurrent writers must leave the greatest pair in place.
	ids := make([]uuid.UUID, 20)
	for i := range ids {
		ids[i] = uuid.Must(uuid.NewV7())
	}
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, err := db.SetLatestMessage(ctx, chat.ID, id, base.Add(time.Minute+time.Duration(i)*time.Millisecond))
			assert.NoError(t, err)
		}(i, id)
	}
	wg.Wait()

	got, err = db.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[len(ids)-1], *got.LatestMessageID)
}

func testMessages(t *testing.T, db DBInterface) {
	ctx := context.Background()
	alice := mustCreateUser(t, db, "Alice", "alice@example.com")
	bob := mustCreateUser(t, db, "Bob", "bob@example.com")
	chat := mustCreateChat(t, db, false, alice, bob)

	send := func(sender *models.User, content string, at time.Time, meta models.Metadata) *models.Message {
		msg := &models.Message{
			ID:        uuid.Must(uuid.NewV7()),
			SenderID:  sender.ID,
			ChatID:    chat.ID,
			Content:   content,
			Type:      meta.MessageType(),
			Metadata:  meta,
			CreatedAt: at,
			UpdatedAt: at,
		}
		require.NoError(t, db.CreateMessage(ctx, msg))
		return msg
	}

	first := send(alice, "Hello Bob", base, models.TextMetadata{})
	second := send(bob, "https://media.example.com/cat.gif", base.Add(time.Second),
		models.MediaMetadata{Kind: models.MessageTypeGIF, Width: 200, Height: 100})
	third := send(alice, "hello again", base.Add(time.Second), models.EmojiMetadata{Code: ":wave:"})

	messages, err := db.ListMessagesByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, first.ID, messages[0].ID)
	assert.Equal(t, second.ID, messages[1].ID)
	assert.Equal(t, third.ID, messages[2].ID)
	assert.Equal(t, models.MediaMetadata{Kind: models.MessageTypeGIF, Width: 200, Height: 100}, messages[1].Metadata)

	latest, err := db.LatestMessageByChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, third.ID, latest.ID)

	require.NoError(t, db.AddReadBy(ctx, first.ID, bob.ID, base))
	require.NoError(t, db.AddReadBy(ctx, first.ID, bob.ID, base.Add(time.Second)))
	got, err := db.GetMessageByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob.ID}, got.ReadBy)

	assert.ErrorIs(t, db.AddReadBy(ctx, uuid.New(), bob.ID, base), ErrMessageNotFound)
	assert.ErrorIs(t, db.AddReadBy(ctx, first.ID, uuid.New(), base), ErrUserNotFound)
	_, err = db.GetMessageByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)

	found, err := db.SearchMessages(ctx, chat.ID, "HELLO")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, first.ID, found[0].ID)

	found, err = db.SearchMessages(ctx, chat.ID, "100%")
	require.NoError(t, err)
	assert.Empty(t, found)

	empty := mustCreateChat(t, db, false, alice, mustCreateUser(t, db, "Carol", "carol@example.com"))
	_, err = db.LatestMessageByChat(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}
