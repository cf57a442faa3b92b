package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// InMemoryUserStore keeps accounts in-process for local/dev use.
type InMemoryUserStore struct {
	mu     sync.RWMutex
	users  map[string]User
	hashes map[string][]byte
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:  make(map[string]User),
		hashes: make(map[string][]byte),
	}
}

func (s *InMemoryUserStore) Create(_ context.Context, user User, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return ErrUserExists
	}
	s.users[user.Username] = user
	s.hashes[user.Username] = passwordHash
	return nil
}

func (s *InMemoryUserStore) Lookup(_ context.Context, username string) (User, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return User{}, nil, ErrInvalidCredentials
	}
	return user, s.hashes[username], nil
}

func (s *InMemoryUserStore) Close() error { return nil }

// NewUserStore builds the postgres-backed store when configured, otherwise
// in-memory (accounts then last only for the process lifetime).
func NewUserStore(ctx context.Context, databaseURL string, logger zerolog.Logger) UserStore {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Warn().Msg("no DATABASE_URL configured, accounts are in-memory only")
		return NewInMemoryUserStore()
	}
	store, err := NewPostgresUserStore(ctx, databaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("user store unreachable, falling back to in-memory accounts")
		return NewInMemoryUserStore()
	}
	return store
}
