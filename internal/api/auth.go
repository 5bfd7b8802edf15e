package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/parley/internal/models"
	"github.com/ammar1510/parley/internal/service"
)

// AuthHandler handles account, login and password recovery routes
type AuthHandler struct {
	Credentials *service.CredentialStore
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(credentials *service.CredentialStore) *AuthHandler {
	return &AuthHandler{Credentials: credentials}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UserRegistration
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.Credentials.Register(c.Request.Context(), service.RegisterInput{
		Name:      input.Name,
		Email:     input.Email,
		Password:  input.Password,
		AvatarURL: input.AvatarURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res.Response())
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.Credentials.Authenticate(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res.Response())
}

// ForgotPassword mails a password reset link
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var input models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.Credentials.RequestPasswordReset(c.Request.Context(), input.Email); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "If the address is registered, a password reset email is on its way",
	})
}

// ResetPassword sets a new password using the token from the reset link
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var input models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.Credentials.ResetPassword(c.Request.Context(), c.Param("token"), input.NewPassword)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res.Response())
}

// GetMe gets the current user profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.Credentials.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user.Response())
}

// UpdateMe changes name, avatar or password of the current user
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input models.ProfileUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.Credentials.UpdateProfile(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user.Response())
}

// SearchUsers lists other users matching ?search= by name or email
func (h *AuthHandler) SearchUsers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	users, err := h.Credentials.SearchUsers(c.Request.Context(), c.Query("search"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]models.UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, u.Response())
	}
	c.JSON(http.StatusOK, resp)
}
