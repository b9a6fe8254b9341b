// Package auth implements account registration, credential login, external
// identity provisioning, and bearer-token session management.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"notekeeper/internal/db"
	"notekeeper/internal/external"
	"notekeeper/internal/types"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// UserRepo defines the data access methods needed by the auth Service.
// Implemented by db.UserRepository.
type UserRepo interface {
	Create(ctx context.Context, u *types.User) error
	GetByEmail(ctx context.Context, email string) (*types.User, error)
}

// SessionRepo defines the data access methods needed for session management.
// Implemented by db.SessionRepository.
type SessionRepo interface {
	Create(ctx context.Context, s *db.Session) error
	Resolve(ctx context.Context, tokenHash string) (*db.Session, *types.User, error)
	Extend(ctx context.Context, tokenHash string, expiresAt time.Time) error
	Delete(ctx context.Context, tokenHash string) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashToken produces a hex-encoded SHA-256 hash of a raw bearer token.
// Sessions are looked up by this hash so a database leak does not leak
// usable tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CanonicalizeEmail normalizes email addresses for consistent DB lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Config holds the tunables for the auth Service.
type Config struct {
	SessionTTL        time.Duration
	MinPasswordLength int
}

// Service implements registration, login, and session resolution.
//
// Enumeration protection: login failures return the same
// auth_invalid_credentials error whether the account is missing or the
// password is wrong.
type Service struct {
	users    UserRepo
	sessions SessionRepo
	hasher   PasswordHasher
	cfg      Config
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewService creates an auth Service. A nil hasher falls back to the
// production bcrypt implementation; zero config fields get safe defaults.
func NewService(users UserRepo, sessions SessionRepo, hasher PasswordHasher, cfg Config, logger *slog.Logger) *Service {
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a password-backed account and an initial session.
// Returns the user and the raw bearer token for the client to store.
func (s *Service) Register(ctx context.Context, email, name, password string) (*types.User, string, error) {
	email = CanonicalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid email address", nil)
	}
	if len(password) < s.cfg.MinPasswordLength {
		return nil, "", types.NewAppErrorWithDetails(
			types.ErrCodeValidationPassword,
			"password does not meet the minimum length",
			nil,
			map[string]any{"min_length": s.cfg.MinPasswordLength},
		)
	}

	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    s.nowFn(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", email)
	return user, token, nil
}

// Login verifies credentials and issues a fresh session token.
func (s *Service) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	email = CanonicalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Mask user-not-found as invalid creds for enumeration protection.
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeAuthUserNotFound {
			return nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, "", err
	}

	if user.PasswordHash == "" {
		// External-identity account; it has no password to check.
		return nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}
	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "email", email)
	return user, token, nil
}

// ProvisionExternal signs in a user asserted by an external identity
// provider. The raw provider profile is normalized first; an account is
// created on first sight, keyed by the normalized email.
func (s *Service) ProvisionExternal(ctx context.Context, provider string, rawProfile map[string]any) (*types.User, string, error) {
	profile, err := external.NormalizeProfile(rawProfile)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		appErr, ok := err.(*types.AppError)
		if !ok || appErr.Code != types.ErrCodeAuthUserNotFound {
			return nil, "", err
		}
		user = &types.User{
			ID:           uuid.New().String(),
			Email:        profile.Email,
			Name:         profile.Name,
			AuthProvider: provider,
			CreatedAt:    s.nowFn(),
		}
		if createErr := s.users.Create(ctx, user); createErr != nil {
			return nil, "", createErr
		}
		s.logger.Info("user provisioned from external identity",
			"user_id", user.ID,
			"provider", provider,
		)
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Resolve validates a raw bearer token and returns the owning user. A valid
// session gets its expiry pushed forward (sliding window); extension
// failures are logged but never fail the request.
func (s *Service) Resolve(ctx context.Context, token string) (*types.User, error) {
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing bearer token", nil)
	}

	tokenHash := HashToken(token)
	session, user, err := s.sessions.Resolve(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	if now.After(session.ExpiresAt) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", nil)
	}

	if err := s.sessions.Extend(ctx, tokenHash, now.Add(s.cfg.SessionTTL)); err != nil {
		s.logger.Warn("failed to extend session", "user_id", user.ID, "error", err.Error())
	}

	return user, nil
}

// Logout deletes the session backing the raw token. Unknown tokens are a
// no-op so logout is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, HashToken(token))
}

// issueSession mints a raw bearer token and persists its hash.
func (s *Service) issueSession(ctx context.Context, userID string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to generate session token: %v", err), err)
	}
	token := "nk_" + hex.EncodeToString(b)

	now := s.nowFn()
	session := &db.Session{
		TokenHash: HashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}
