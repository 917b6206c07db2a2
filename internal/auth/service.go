package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vovakirdan/watchparty-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
)

// Session is what a successful register, login or guest login hands back.
// UserID doubles as the userId a client sends on join.
type Session struct {
	Token     string
	ExpiresAt time.Time
	UserID    int64
	Username  string
	IsGuest   bool
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return nil, ErrInvalidPassword
	}

	_, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, ErrUserExists
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.issue(user)
}

// Login validates credentials and signs the user in.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Guest creates a throwaway account so a visitor can still be paired in
// shared watch history for the life of the token.
func (s *Service) Guest(ctx context.Context) (*Session, error) {
	sessionID := strings.ReplaceAll(uuid.NewString(), "-", "")

	user, err := s.store.CreateGuestUser(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create guest user: %w", err)
	}
	return s.issue(user)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) issue(user *store.User) (*Session, error) {
	token, expires, err := GenerateToken(s.jwtConfig, user.ID, user.Username, user.IsGuest)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{
		Token:     token,
		ExpiresAt: expires,
		UserID:    user.ID,
		Username:  user.Username,
		IsGuest:   user.IsGuest,
	}, nil
}
