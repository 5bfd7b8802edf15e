package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/parley/internal/auth"
)

// Routes bundles what RegisterRoutes wires together. Limiters may be nil.
type Routes struct {
	Issuer       *auth.Issuer
	Auth         *AuthHandler
	Chats        *ChatHandler
	Messages     *MessageHandler
	LoginLimiter Limiter
	ResetLimiter Limiter
}

// RegisterRoutes mounts the public and authenticated API on router.
func RegisterRoutes(router *gin.Engine, r Routes) {
	// Public routes (no authentication required)
	public := router.Group("/api/auth")
	{
		public.POST("/register", r.Auth.Register)
		public.POST("/login", RateLimit(r.LoginLimiter, "login", "too many login attempts"), r.Auth.Login)
		public.POST("/forgot-password", RateLimit(r.ResetLimiter, "reset", "too many password reset requests"), r.Auth.ForgotPassword)
		public.PUT("/reset-password/:token", RateLimit(r.ResetLimiter, "reset", "too many password reset requests"), r.Auth.ResetPassword)
	}

	// Protected routes (authentication required)
	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware(r.Issuer))
	{
		authorized.GET("/auth/me", r.Auth.GetMe)
		authorized.PATCH("/auth/me", r.Auth.UpdateMe)
		authorized.GET("/users", r.Auth.SearchUsers)

		authorized.POST("/chats", r.Chats.AccessChat)
		authorized.GET("/chats", r.Chats.ListChats)
		authorized.POST("/chats/group", r.Chats.CreateGroup)
		authorized.PUT("/chats/:chatID/rename", r.Chats.RenameGroup)
		authorized.PUT("/chats/:chatID/members", r.Chats.AddMember)
		authorized.DELETE("/chats/:chatID/members/:userID", r.Chats.RemoveMember)

		authorized.POST("/messages", r.Messages.SendMessage)
		authorized.GET("/chats/:chatID/messages", r.Messages.ListMessages)
		authorized.GET("/chats/:chatID/messages/search", r.Messages.SearchMessages)
		authorized.PUT("/messages/:messageID/read", r.Messages.MarkMessageAsRead)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
