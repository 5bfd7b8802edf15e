package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/parley/internal/apperr"
	"github.com/ammar1510/parley/internal/auth"
	"github.com/ammar1510/parley/internal/logger"
)

const userIDKey = "userID"

// Limiter decides whether another request for key fits the current quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// AuthMiddleware validates bearer tokens and stores the user ID in the context.
func AuthMiddleware(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(c, apperr.Auth("not authorized, no token"))
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := issuer.Verify(tokenString)
		if err != nil {
			log.Debug("Rejected token %s: %v", logger.Preview(tokenString), err)
			respondError(c, apperr.Auth("not authorized, token failed"))
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RateLimit rejects requests beyond the limiter's quota per client IP.
// A nil limiter lets everything through.
func RateLimit(limiter Limiter, scope, msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if !limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": msg, "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}

// currentUserID returns the authenticated user. It writes a 401 and returns
// false when the middleware did not run.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		respondError(c, apperr.Auth("not authenticated"))
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		respondError(c, apperr.Auth("not authenticated"))
		return uuid.Nil, false
	}
	return id, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
