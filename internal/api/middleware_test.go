package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/parley/internal/apperr"
	"github.com/ammar1510/parley/internal/auth"
	"github.com/ammar1510/parley/internal/models"
)

type countingLimiter struct {
	limit int
	keys  map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string) bool {
	l.keys[key]++
	return l.keys[key] <= l.limit
}

func newProtectedRouter(t *testing.T, issuer *auth.Issuer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(issuer), func(c *gin.Context) {
		userID, _ := currentUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

// TestAuthMiddleware tests the authentication middleware
func TestAuthMiddleware(t *testing.T) {
	issuer, err := auth.NewIssuer([]byte("middleware-key"), time.Hour)
	require.NoError(t, err)
	other, err := auth.NewIssuer([]byte("someone-else"), time.Hour)
	require.NoError(t, err)
	expired := issuer.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) })

	user := &models.User{ID: uuid.New(), Name: "testuser"}
	userID := user.ID
	valid, _, err := issuer.GenerateToken(user)
	require.NoError(t, err)
	forged, _, err := other.GenerateToken(user)
	require.NoError(t, err)
	stale, _, err := expired.GenerateToken(user)
	require.NoError(t, err)

	router := newProtectedRouter(t, issuer)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, wantStatus: http.StatusUnauthorized},
		{name: "foreign key", header: "Bearer " + forged, wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + stale, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &countingLimiter{limit: 1, keys: map[string]int{}}

	router := gin.New()
	router.GET("/limited", RateLimit(limiter, "login", "slow down"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/open", RateLimit(nil, "login", "slow down"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(path, addr string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, call("/limited", "10.0.0.1:1234").Code)
	w := call("/limited", "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"slow down","kind":"rate_limited"}`, w.Body.String())

	assert.Equal(t, http.StatusNoContent, call("/limited", "10.0.0.2:1234").Code, "limits are per client")
	assert.Equal(t, 1, limiter.keys["login:10.0.0.2"])

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, call("/open", "10.0.0.1:1234").Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindAuth, http.StatusUnauthorized},
		{apperr.KindDependency, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.kind), string(tt.kind))
	}
}
