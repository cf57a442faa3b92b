package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one recorded message within a session. Sequence is the
// authoritative per-session ordering; Timestamp is display-only.
// A turn with Confirmed=false has been accepted into the hot cache but
// not yet durably persisted.
type Turn struct {
	SessionID string    `json:"session_id"`
	Sequence  int64     `json:"sequence"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Confirmed bool      `json:"confirmed"`
}

// DurableStore is the append-only source of truth for turns.
type DurableStore interface {
	Append(ctx context.Context, turn Turn) (Turn, error)
	MaxSequence(ctx context.Context, sessionID string) (int64, error)
	// QueryRecent returns the most recent turns, ascending by sequence.
	QueryRecent(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	// QueryPage returns up to pageSize turns strictly older than
	// beforeSequence, descending by sequence. beforeSequence <= 0 means
	// "from the newest".
	QueryPage(ctx context.Context, sessionID string, beforeSequence int64, pageSize int) ([]Turn, error)
	DeleteLast(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

// HotCache holds the most recent turns per session, newest first.
// Implementations must preserve per-session insertion order.
type HotCache interface {
	// Push prepends a turn and returns the new entry count for the session.
	Push(ctx context.Context, turn Turn) (int64, error)
	// ReadWindow returns up to limit of the newest turns, ascending by
	// sequence.
	ReadWindow(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	// EvictOldest drops the oldest entry. Evicting from an empty or
	// already-trimmed session is a no-op.
	EvictOldest(ctx context.Context, sessionID string) error
	// DropNewest removes the most recent entry, if any.
	DropNewest(ctx context.Context, sessionID string) error
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

var (
	// ErrStoreUnavailable marks durable store failures. Reads surface it;
	// writes recover into unconfirmed mode instead.
	ErrStoreUnavailable = errors.New("durable store unavailable")
	// ErrCacheUnavailable marks hot cache failures. Never surfaced to
	// callers; the manager degrades to the durable path.
	ErrCacheUnavailable = errors.New("hot cache unavailable")
)

// ValidationError reports caller input that violates the turn contract.
// It is never retried and causes no side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
