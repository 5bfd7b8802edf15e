package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessChat(t *testing.T) {
	s := setupTestRouter(t, nil)
	alice := s.register(t, "Alice", "alice@example.com", "password123")
	bob := s.register(t, "Bob", "bob@example.com", "password123")

	w := s.do(t, http.MethodPost, "/api/chats", alice.Token, gin.H{"user_id": bob.User.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	chat := decode[chatBody](t, w)
	assert.False(t, chat.IsGroup)
	assert.Len(t, chat.Members, 2)

	w = s.do(t, http.MethodPost, "/api/chats", bob.Token, gin.H{"user_id": alice.User.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, chat.ID, decode[chatBody](t, w).ID)

	tests := []struct {
		name       string
		body       gin.H
		wantStatus int
	}{
		{name: "missing user", body: gin.H{}, wantStatus: http.StatusBadRequest},
		{name: "self", body: gin.H{"user_id": alice.User.ID}, wantStatus: http.StatusBadRequest},
		{name: "unknown user", body: gin.H{"user_id": uuid.New()}, wantStatus: http.StatusNotFound},
		{name: "malformed id", body: gin.H{"user_id": "not-a-uuid"}, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/chats", alice.Token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestListChats(t *testing.T) {
	s := setupTestRouter(t, nil)
	alice := s.register(t, "Alice", "alice@example.com", "password123")
	bob := s.register(t, "Bob", "bob@example.com", "password123")
	carol := s.register(t, "Carol", "carol@example.com", "password123")

	first := decode[chatBody](t, s.do(t, http.MethodPost, "/api/chats", alice.Token, gin.H{"user_id": bob.User.ID}))
	second := decode[chatBody](t, s.do(t, http.MethodPost, "/api/chats", alice.Token, gin.H{"user_id": carol.User.ID}))

	w := s.do(t, http.MethodPost, "/api/messages", bob.Token, gin.H{"chat_id": first.ID, "content": "hi alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/chats", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	chats := decode[[]chatBody](t, w)
	require.Len(t, chats, 2)
	assert.Equal(t, first.ID, chats[0].ID)
	require.NotNil(t, chats[0].LatestMessage)
	assert.Equal(t, "hi alice", chats[0].LatestMessage.Content)
	assert.Equal(t, "Bob", chats[0].LatestMessage.Sender.Name)
	assert.Equal(t, second.ID, chats[1].ID)
	assert.Nil(t, chats[1].LatestMessage)

	w = s.do(t, http.MethodGet, "/api/chats", carol.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]chatBody](t, w), 1)
}

func TestGroupRoutes(t *testing.T) {
	s := setupTestRouter(t, nil)
	alice := s.register(t, "Alice", "alice@example.com", "password123")
	bob := s.register(t, "Bob", "bob@example.com", "password123")
	carol := s.register(t, "Carol", "carol@example.com", "password123")
	dave := s.register(t, "Dave", "dave@example.com", "password123")

	w := s.do(t, http.MethodPost, "/api/chats/group", alice.Token, gin.H{"name": "pair", "member_ids": []uuid.UUID{bob.User.ID}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "a group needs three members")

	w = s.do(t, http.MethodPost, "/api/chats/group", alice.Token, gin.H{
		"name":       "friends",
		"member_ids": []uuid.UUID{bob.User.ID, carol.User.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	group := decode[chatBody](t, w)
	assert.True(t, group.IsGroup)
	require.NotNil(t, group.Admin)
	assert.Equal(t, alice.User.ID, group.Admin.ID)
	assert.Len(t, group.Members, 3)

	base := "/api/chats/" + group.ID.String()

	w = s.do(t, http.MethodPut, base+"/rename", alice.Token, gin.H{"name": "best friends"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "best friends", decode[chatBody](t, w).Name)

	w = s.do(t, http.MethodPut, base+"/rename", bob.Token, gin.H{"name": "hijacked"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, base+"/members", alice.Token, gin.H{"user_id": dave.User.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[chatBody](t, w).Members, 4)

	w = s.do(t, http.MethodDelete, base+"/members/"+dave.User.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[chatBody](t, w).Members, 3)

	w = s.do(t, http.MethodDelete, base+"/members/"+dave.User.ID.String(), alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, base+"/members/"+alice.User.ID.String(), alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/chats/not-a-uuid/rename", alice.Token, gin.H{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/chats/"+uuid.New().String()+"/rename", alice.Token, gin.H{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
