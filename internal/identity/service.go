// Package identity supplies the session identity that scopes all memory
// operations: an authenticated user id or an ephemeral guest id.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// User is an authenticated account. Its ID doubles as the session id for
// all memory operations.
type User struct {
	ID        string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, user User, passwordHash []byte) error
	Lookup(ctx context.Context, username string) (User, []byte, error)
	Close() error
}

type Service struct {
	users UserStore
	log   zerolog.Logger
}

func NewService(users UserStore, logger zerolog.Logger) *Service {
	return &Service{
		users: users,
		log:   logger.With().Str("component", "identity").Logger(),
	}
}

func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("username must not be empty")
	}
	if len(password) < 8 {
		return User{}, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:        "user-" + gonanoid.Must(12),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user, hash); err != nil {
		return User{}, err
	}
	s.log.Info().Str("username", username).Msg("user registered")
	return user, nil
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, hash, err := s.users.Lookup(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// NewGuestID mints an ephemeral session identity for users who skip login.
func NewGuestID() string {
	return "guest-" + gonanoid.Must(12)
}
