package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/parley/internal/auth"
	"github.com/ammar1510/parley/internal/database"
	"github.com/ammar1510/parley/internal/models"
	"github.com/ammar1510/parley/internal/service"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Error(0)
}

type testServer struct {
	router   *gin.Engine
	db       *database.MemoryDB
	notifier *mockNotifier
	issuer   *auth.Issuer
}

// setupTestRouter wires the full API on an in-memory store.
func setupTestRouter(t *testing.T, loginLimiter Limiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := database.NewMemoryDB()
	notifier := &mockNotifier{}
	t.Cleanup(func() { notifier.AssertExpectations(t) })

	issuer, err := auth.NewIssuer([]byte("api-test-key"), time.Hour)
	require.NoError(t, err)

	clock := service.SystemClock{}
	credentials := service.NewCredentialStore(db, issuer, notifier, clock, service.CredentialsConfig{
		FrontendURL: "https://app.example.com",
		AppName:     "Parley",
	})
	directory := service.NewDirectory(db, db, db, clock)
	ledger := service.NewLedger(db, directory, clock)

	router := gin.New()
	RegisterRoutes(router, Routes{
		Issuer:       issuer,
		Auth:         NewAuthHandler(credentials),
		Chats:        NewChatHandler(directory),
		Messages:     NewMessageHandler(ledger),
		LoginLimiter: loginLimiter,
	})

	return &testServer{router: router, db: db, notifier: notifier, issuer: issuer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// register creates an account through the API and returns its session.
func (s *testServer) register(t *testing.T, name, email, password string) models.AuthResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

var resetLink = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)

// chatBody and messageBody mirror the response views without the
// polymorphic metadata field.
type chatBody struct {
	ID            uuid.UUID             `json:"id"`
	Name          string                `json:"name"`
	IsGroup       bool                  `json:"is_group"`
	Admin         *models.UserResponse  `json:"admin"`
	Members       []models.UserResponse `json:"members"`
	LatestMessage *messageBody          `json:"latest_message"`
}

type messageBody struct {
	ID       uuid.UUID            `json:"id"`
	ChatID   uuid.UUID            `json:"chat_id"`
	Sender   models.SenderProfile `json:"sender"`
	Chat     *chatBody            `json:"chat"`
	Content  string               `json:"content"`
	Type     string               `json:"message_type"`
	Metadata json.RawMessage      `json:"metadata"`
	ReadBy   []uuid.UUID          `json:"read_by"`
}
