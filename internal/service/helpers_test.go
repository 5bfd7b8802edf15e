package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/parley/internal/auth"
	"github.com/ammar1510/parley/internal/database"
	"github.com/ammar1510/parley/internal/models"
)

// fakeClock advances by a millisecond on every read so consecutive calls
// never return the same instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Error(0)
}

var resetLink = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)

// expectResetMail makes the notifier accept one mail to address and returns
// a function yielding the secret from the captured link.
func expectResetMail(t *testing.T, n *mockNotifier, address string, result error) func() string {
	t.Helper()
	var body string
	n.On("Send", mock.Anything, address, "Password Reset Request", mock.Anything).
		Run(func(args mock.Arguments) { body = args.String(3) }).
		Return(result).Once()
	return func() string {
		m := resetLink.FindStringSubmatch(body)
		require.Len(t, m, 2, "reset link in mail body")
		return m[1]
	}
}

type fixture struct {
	db        *database.MemoryDB
	clock     *fakeClock
	notifier  *mockNotifier
	creds     *CredentialStore
	directory *Directory
	ledger    *Ledger
}

func newFixture(t *testing.T, cfg CredentialsConfig) *fixture {
	t.Helper()
	db := database.NewMemoryDB()
	clock := newFakeClock()
	notifier := &mockNotifier{}
	t.Cleanup(func() { notifier.AssertExpectations(t) })

	issuer, err := auth.NewIssuer([]byte("service-test-key"), time.Hour)
	require.NoError(t, err)

	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "https://app.example.com/"
	}
	directory := NewDirectory(db, db, db, clock)
	return &fixture{
		db:        db,
		clock:     clock,
		notifier:  notifier,
		creds:     NewCredentialStore(db, issuer, notifier, clock, cfg),
		directory: directory,
		ledger:    NewLedger(db, directory, clock),
	}
}

func (f *fixture) register(t *testing.T, name, address, password string) *models.User {
	t.Helper()
	res, err := f.creds.Register(context.Background(), RegisterInput{Name: name, Email: address, Password: password})
	require.NoError(t, err)
	return res.User
}

func (f *fixture) send(t *testing.T, sender *models.User, chatID uuid.UUID, content, msgType string) *models.MessageView {
	t.Helper()
	view, err := f.ledger.Send(context.Background(), SendInput{
		SenderID: sender.ID,
		ChatID:   chatID,
		Content:  content,
		Type:     msgType,
	})
	require.NoError(t, err)
	return view
}
