package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ammar1510/parley/internal/apperr"
	"github.com/ammar1510/parley/internal/database"
	"github.com/ammar1510/parley/internal/models"
)

const (
	minGroupSize      = 3
	minRemainingGroup = 2
)

// Directory owns chats: direct conversations, groups and the pointer to
// each chat's latest message.
type Directory struct {
	users    database.UserStore
	chats    database.ChatStore
	messages database.MessageStore
	clock    Clock
}

func NewDirectory(users database.UserStore, chats database.ChatStore, messages database.MessageStore, clock Clock) *Directory {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Directory{users: users, chats: chats, messages: messages, clock: clock}
}

// FindOrCreateDirect returns the direct chat between userA and userB,
// creating it on first use. Concurrent callers get the same chat.
func (d *Directory) FindOrCreateDirect(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	if userA == uuid.Nil || userB == uuid.Nil {
		return nil, apperr.Validation("user id is required")
	}
	if userA == userB {
		return nil, apperr.Validation("cannot open a chat with yourself")
	}
	if err := d.requireUsers(ctx, []uuid.UUID{userA, userB}); err != nil {
		return nil, err
	}

	chat, err := d.chats.FindDirectChat(ctx, userA, userB)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, database.ErrChatNotFound) {
		return nil, storageFailure("find direct chat", err)
	}

	now := timestamp(d.clock)
	chat = &models.Chat{
		ID:        uuid.New(),
		MemberIDs: []uuid.UUID{userA, userB},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = d.chats.CreateChat(ctx, chat)
	if errors.Is(err, database.ErrChatAlreadyExists) {
		// Lost the race; the winner's chat is the one to use.
		chat, err = d.chats.FindDirectChat(ctx, userA, userB)
		if err != nil {
			return nil, storageFailure("find direct chat", err)
		}
		return chat, nil
	}
	if err != nil {
		return nil, storageFailure("create direct chat", err)
	}

	log.Info("Created direct chat %s", chat.ID)
	return chat, nil
}

// CreateGroup creates a named group administered by creatorID. The creator
// is added to the members if absent.
func (d *Directory) CreateGroup(ctx context.Context, name string, memberIDs []uuid.UUID, creatorID uuid.UUID) (*models.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("please fill all the fields")
	}

	members := make([]uuid.UUID, 0, len(memberIDs)+1)
	seen := make(map[uuid.UUID]bool, len(memberIDs)+1)
	add := func(id uuid.UUID) {
		if id != uuid.Nil && !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	for _, id := range memberIDs {
		add(id)
	}
	add(creatorID)
	if len(members) < minGroupSize {
		return nil, apperr.Validation("more than 2 users are required to form a group chat")
	}
	if err := d.requireUsers(ctx, members); err != nil {
		return nil, err
	}

	now := timestamp(d.clock)
	admin := creatorID
	chat := &models.Chat{
		ID:        uuid.New(),
		Name:      name,
		IsGroup:   true,
		AdminID:   &admin,
		MemberIDs: members,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.chats.CreateChat(ctx, chat); err != nil {
		return nil, storageFailure("create group", err)
	}

	log.Info("Created group %s with %d members", chat.ID, len(members))
	return chat, nil
}

// RenameGroup changes the name of a group. Only its admin may do so.
func (d *Directory) RenameGroup(ctx context.Context, chatID, requesterID uuid.UUID, name string) (*models.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}
	chat, err := d.adminGroup(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	chat.Name = name
	return d.saveGroup(ctx, chat)
}

// AddMember adds userID to a group. Adding an existing member is a no-op.
func (d *Directory) AddMember(ctx context.Context, chatID, requesterID, userID uuid.UUID) (*models.Chat, error) {
	chat, err := d.adminGroup(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	if chat.HasMember(userID) {
		return chat, nil
	}
	if err := d.requireUsers(ctx, []uuid.UUID{userID}); err != nil {
		return nil, err
	}
	chat.MemberIDs = append(chat.MemberIDs, userID)
	return d.saveGroup(ctx, chat)
}

// RemoveMember removes userID from a group. A group keeps at least two
// members and its admin.
func (d *Directory) RemoveMember(ctx context.Context, chatID, requesterID, userID uuid.UUID) (*models.Chat, error) {
	chat, err := d.adminGroup(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(userID) {
		return nil, apperr.NotFound("user is not a member of this group")
	}
	if chat.IsAdmin(userID) {
		return nil, apperr.Validation("the group admin cannot be removed")
	}
	if len(chat.MemberIDs)-1 < minRemainingGroup {
		return nil, apperr.Validation("a group needs at least 2 members")
	}

	kept := chat.MemberIDs[:0]
	for _, id := range chat.MemberIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	chat.MemberIDs = kept
	return d.saveGroup(ctx, chat)
}

// SetLatestMessage moves the chat's pointer to msg unless a later message
// is already recorded.
func (d *Directory) SetLatestMessage(ctx context.Context, chatID uuid.UUID, msg *models.Message) error {
	moved, err := d.chats.SetLatestMessage(ctx, chatID, msg.ID, msg.CreatedAt)
	if errors.Is(err, database.ErrChatNotFound) {
		return apperr.NotFound("chat not found")
	}
	if err != nil {
		return storageFailure("set latest message", err)
	}
	if !moved {
		log.Debug("Latest message of chat %s already newer than %s", chatID, msg.ID)
	}
	return nil
}

// GetChat returns the chat if requesterID is one of its members. Missing
// chats and chats the requester is not in look the same.
func (d *Directory) GetChat(ctx context.Context, chatID, requesterID uuid.UUID) (*models.Chat, error) {
	if chatID == uuid.Nil {
		return nil, apperr.Validation("chat id is required")
	}
	chat, err := d.chats.GetChatByID(ctx, chatID)
	if errors.Is(err, database.ErrChatNotFound) {
		return nil, apperr.NotFound("chat not found")
	}
	if err != nil {
		return nil, storageFailure("get chat", err)
	}
	if !chat.HasMember(requesterID) {
		return nil, apperr.NotFound("chat not found")
	}
	return chat, nil
}

// ListForUser returns the user's chats, most recent activity first.
func (d *Directory) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatView, error) {
	chats, err := d.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, storageFailure("list chats", err)
	}
	return d.views(ctx, chats)
}

// View joins chat with member profiles and its latest message.
func (d *Directory) View(ctx context.Context, chat *models.Chat) (*models.ChatView, error) {
	views, err := d.views(ctx, []*models.Chat{chat})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (d *Directory) views(ctx context.Context, chats []*models.Chat) ([]*models.ChatView, error) {
	latest := make(map[uuid.UUID]*models.Message, len(chats))
	var userIDs []uuid.UUID
	for _, chat := range chats {
		userIDs = append(userIDs, chat.MemberIDs...)
		if chat.AdminID != nil {
			userIDs = append(userIDs, *chat.AdminID)
		}
		if chat.LatestMessageID == nil {
			continue
		}
		msg, err := d.messages.GetMessageByID(ctx, *chat.LatestMessageID)
		if errors.Is(err, database.ErrMessageNotFound) {
			log.Warn("Chat %s points at missing message %s", chat.ID, *chat.LatestMessageID)
			continue
		}
		if err != nil {
			return nil, storageFailure("get latest message", err)
		}
		latest[chat.ID] = msg
		userIDs = append(userIDs, msg.SenderID)
	}

	profiles, err := d.profiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]*models.ChatView, 0, len(chats))
	for _, chat := range chats {
		view := &models.ChatView{
			ID:        chat.ID,
			Name:      chat.Name,
			IsGroup:   chat.IsGroup,
			Members:   make([]models.UserResponse, 0, len(chat.MemberIDs)),
			CreatedAt: chat.CreatedAt,
			UpdatedAt: chat.UpdatedAt,
		}
		for _, id := range chat.MemberIDs {
			if user, ok := profiles[id]; ok {
				view.Members = append(view.Members, user.Response())
			}
		}
		if chat.AdminID != nil {
			if admin, ok := profiles[*chat.AdminID]; ok {
				resp := admin.Response()
				view.Admin = &resp
			}
		}
		if msg, ok := latest[chat.ID]; ok {
			view.LatestMessage = models.NewMessageView(msg, senderProfile(profiles, msg.SenderID))
		}
		views = append(views, view)
	}
	return views, nil
}

func (d *Directory) profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	byID := make(map[uuid.UUID]*models.User, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	users, err := d.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, storageFailure("get users", err)
	}
	for _, user := range users {
		byID[user.ID] = user
	}
	return byID, nil
}

func senderProfile(profiles map[uuid.UUID]*models.User, id uuid.UUID) models.SenderProfile {
	if user, ok := profiles[id]; ok {
		return user.Profile()
	}
	return models.SenderProfile{ID: id}
}

func (d *Directory) requireUsers(ctx context.Context, ids []uuid.UUID) error {
	found, err := d.profiles(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return apperr.NotFound("user not found")
		}
	}
	return nil
}

func (d *Directory) adminGroup(ctx context.Context, chatID, requesterID uuid.UUID) (*models.Chat, error) {
	chat, err := d.chats.GetChatByID(ctx, chatID)
	if errors.Is(err, database.ErrChatNotFound) {
		return nil, apperr.NotFound("chat not found")
	}
	if err != nil {
		return nil, storageFailure("get chat", err)
	}
	if !chat.IsGroup {
		return nil, apperr.Validation("not a group chat")
	}
	if !chat.IsAdmin(requesterID) {
		return nil, apperr.Auth("only the group admin can do this")
	}
	return chat, nil
}

func (d *Directory) saveGroup(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	chat.UpdatedAt = timestamp(d.clock)
	err := d.chats.UpdateChat(ctx, chat)
	if errors.Is(err, database.ErrChatNotFound) {
		return nil, apperr.NotFound("chat not found")
	}
	if err != nil {
		return nil, storageFailure("update chat", err)
	}
	return chat, nil
}
