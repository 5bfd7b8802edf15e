package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to TEST_DATABASE_URL, migrates and empties it.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := NewPostgresDB(ctx, connStr)
	require.NoError(t, err, "connect to test database")
	require.NoError(t, db.Migrate(ctx))

	_, err = db.ExecContext(ctx, `TRUNCATE message_reads, messages, chat_members, chats, users CASCADE`)
	require.NoError(t, err, "clean up test data")

	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresDB(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) DBInterface { return setupTestDB(t) })
}

func TestNewPostgresDB(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	tests := []struct {
		name      string
		connStr   string
		wantError bool
	}{
		{
			name:      "valid connection string",
			connStr:   os.Getenv("TEST_DATABASE_URL"),
			wantError: false,
		},
		{
			name:      "invalid connection string",
			connStr:   "invalid connection string",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := NewPostgresDB(context.Background(), tt.connStr)

			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, db)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, db)
				defer db.Close()
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\temp`, escapeLike(`c:\temp`))
}
