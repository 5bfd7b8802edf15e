package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/parley/internal/apperr"
	"github.com/ammar1510/parley/internal/auth"
	"github.com/ammar1510/parley/internal/database"
	"github.com/ammar1510/parley/internal/email"
	"github.com/ammar1510/parley/internal/logger"
	"github.com/ammar1510/parley/internal/models"
)

const errInvalidCredentials = "invalid email or password"

// CredentialsConfig tunes the password recovery flow.
type CredentialsConfig struct {
	// FrontendURL prefixes reset links: <FrontendURL>/reset-password/<secret>.
	FrontendURL string
	AppName     string
	// ConcealUnknownEmails makes a reset request for an unknown address
	// succeed silently instead of failing with not_found.
	ConcealUnknownEmails bool
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	AvatarURL string
}

// AuthResult is a user together with a freshly issued session token.
type AuthResult struct {
	User   *models.User
	Token  string
	Expiry time.Time
}

func (r *AuthResult) Response() models.AuthResponse {
	return models.AuthResponse{Token: r.Token, Expiry: r.Expiry, User: r.User.Response()}
}

// CredentialStore owns accounts, login and password recovery.
type CredentialStore struct {
	users    database.UserStore
	issuer   *auth.Issuer
	notifier Notifier
	clock    Clock
	cfg      CredentialsConfig
}

func NewCredentialStore(users database.UserStore, issuer *auth.Issuer, notifier Notifier, clock Clock, cfg CredentialsConfig) *CredentialStore {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.AppName == "" {
		cfg.AppName = "Chat App"
	}
	return &CredentialStore{users: users, issuer: issuer, notifier: notifier, clock: clock, cfg: cfg}
}

func normalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (s *CredentialStore) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	address := normalizeEmail(in.Email)
	if name == "" || address == "" || in.Password == "" {
		return nil, apperr.Validation("please enter all the fields")
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	avatar := strings.TrimSpace(in.AvatarURL)
	if avatar == "" {
		avatar = models.DefaultAvatarURL
	}

	now := timestamp(s.clock)
	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        address,
		PasswordHash: hash,
		AvatarURL:    avatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrUserAlreadyExists) {
			return nil, apperr.Conflict("user already exists")
		}
		return nil, storageFailure("create user", err)
	}

	log.Info("Registered user %s", user.ID)
	return s.issue(user)
}

// Authenticate checks email and password. Unknown emails and wrong
// passwords yield the same error.
func (s *CredentialStore) Authenticate(ctx context.Context, address, password string) (*AuthResult, error) {
	address = normalizeEmail(address)
	if address == "" || password == "" {
		return nil, apperr.Validation("please provide email and password")
	}

	user, err := s.users.GetUserByEmail(ctx, address)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, apperr.Auth(errInvalidCredentials)
	}
	if err != nil {
		return nil, storageFailure("get user by email", err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		log.Debug("Password mismatch for user %s", user.ID)
		return nil, apperr.Auth(errInvalidCredentials)
	}
	return s.issue(user)
}

// RequestPasswordReset stores a fresh reset token for the account and mails
// the reset link. A pending token is replaced. If the mail cannot be sent
// the token written by this call is removed again.
func (s *CredentialStore) RequestPasswordReset(ctx context.Context, address string) error {
	address = normalizeEmail(address)
	if address == "" {
		return apperr.Validation("please provide email address")
	}

	user, err := s.users.GetUserByEmail(ctx, address)
	if errors.Is(err, database.ErrUserNotFound) {
		if s.cfg.ConcealUnknownEmails {
			log.Debug("Password reset requested for unknown address")
			return nil
		}
		return apperr.NotFound("user not found with this email address")
	}
	if err != nil {
		return storageFailure("get user by email", err)
	}

	secret, hash, err := auth.NewResetSecret()
	if err != nil {
		return apperr.Dependency("could not generate reset token", err)
	}
	expiry := timestamp(s.clock).Add(auth.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiry); err != nil {
		return storageFailure("set reset token", err)
	}

	body, err := email.RenderPasswordReset(email.PasswordResetData{
		AppName:   s.cfg.AppName,
		Name:      user.Name,
		ResetURL:  s.resetURL(secret),
		ExpiresIn: "10 minutes",
	})
	if err == nil {
		err = s.notifier.Send(ctx, user.Email, email.PasswordResetSubject, body)
	}
	if err != nil {
		log.Error("Email sending error for user %s: %v", user.ID, err)
		if rbErr := s.users.ClearResetToken(context.WithoutCancel(ctx), user.ID, hash); rbErr != nil {
			log.Error("Could not clear reset token for user %s: %v", user.ID, rbErr)
			return apperr.Dependency("email could not be sent", errors.Join(err, rbErr))
		}
		return apperr.Dependency("email could not be sent, please try again later", err)
	}

	log.Info("Password reset mail sent to user %s", user.ID)
	return nil
}

func (s *CredentialStore) resetURL(secret string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/reset-password/" + secret
}

// ResetPassword consumes a reset token and sets a new password. The token
// works once and only before it expires.
func (s *CredentialStore) ResetPassword(ctx context.Context, rawToken, newPassword string) (*AuthResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" || newPassword == "" {
		return nil, apperr.Validation("please provide token and new password")
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	passwordHash, err := hashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	tokenHash := auth.HashResetSecret(rawToken)
	now := timestamp(s.clock)
	user, err := s.users.ConsumeResetToken(ctx, tokenHash, now, passwordHash)
	if errors.Is(err, database.ErrResetTokenInvalid) {
		if err := s.users.ClearExpiredResetToken(ctx, tokenHash, now); err != nil {
			log.Warn("Could not clear expired reset token: %v", err)
		}
		log.Debug("Rejected reset token %s", logger.Preview(rawToken))
		return nil, apperr.Auth("invalid or expired reset token")
	}
	if err != nil {
		return nil, storageFailure("consume reset token", err)
	}

	log.Info("Password reset for user %s", user.ID)
	return s.issue(user)
}

func (s *CredentialStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, storageFailure("get user", err)
	}
	return user, nil
}

// SearchUsers matches query against names and emails, excluding the caller.
// An empty query lists everyone else.
func (s *CredentialStore) SearchUsers(ctx context.Context, query string, excludeID uuid.UUID) ([]*models.User, error) {
	users, err := s.users.SearchUsers(ctx, strings.TrimSpace(query), excludeID)
	if err != nil {
		return nil, storageFailure("search users", err)
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields of update. The password hash is
// recomputed only when a new password is supplied.
func (s *CredentialStore) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		user.Name = name
	}
	if update.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*update.AvatarURL)
		if user.AvatarURL == "" {
			user.AvatarURL = models.DefaultAvatarURL
		}
	}
	if update.Password != nil {
		if err := auth.ValidatePassword(*update.Password); err != nil {
			return nil, apperr.Validation(err.Error())
		}
		hash, err := hashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	user.UpdatedAt = timestamp(s.clock)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		if errors.Is(err, database.ErrUserAlreadyExists) {
			return nil, apperr.Conflict("email already in use")
		}
		return nil, storageFailure("update user", err)
	}
	return user, nil
}

// hashPassword reports over-long input as a validation failure, since
// resubmitting it can never succeed.
func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", apperr.Validation(err.Error())
	}
	if err != nil {
		return "", apperr.Dependency("could not hash password", err)
	}
	return hash, nil
}

func (s *CredentialStore) issue(user *models.User) (*AuthResult, error) {
	token, expiry, err := s.issuer.GenerateToken(user)
	if err != nil {
		return nil, apperr.Dependency("could not issue token", err)
	}
	return &AuthResult{User: user, Token: token, Expiry: expiry}, nil
}
