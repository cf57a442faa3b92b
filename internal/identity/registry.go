package identity

import (
	"context"
	"sync"
	"time"
)

// Kind distinguishes authenticated sessions from ephemeral guests.
type Kind string

const (
	KindUser  Kind = "user"
	KindGuest Kind = "guest"
)

type trackedSession struct {
	Kind           Kind
	LastActivityAt time.Time
}

// Registry tracks live session ids so idle guests can be reclaimed. It
// never creates or destroys memory state itself; the expire hook lets the
// caller release per-session resources.
type Registry struct {
	mu                sync.RWMutex
	sessions          map[string]*trackedSession
	inactivityTimeout time.Duration
	onExpire          func(sessionID string)
}

func NewRegistry(inactivityTimeout time.Duration) *Registry {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Registry{
		sessions:          make(map[string]*trackedSession),
		inactivityTimeout: inactivityTimeout,
	}
}

func (r *Registry) SetExpireHook(hook func(sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

func (r *Registry) Track(sessionID string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &trackedSession{
		Kind:           kind,
		LastActivityAt: time.Now().UTC(),
	}
}

func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.LastActivityAt = time.Now().UTC()
	}
}

func (r *Registry) GuestCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.Kind == KindGuest {
			count++
		}
	}
	return count
}

// StartJanitor expires inactive guest sessions until ctx ends.
// Authenticated sessions are never expired here; their memory is durable
// and their identity outlives process restarts.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireInactive()
			}
		}
	}()
}

func (r *Registry) expireInactive() {
	now := time.Now().UTC()
	var expired []string

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.Kind != KindGuest {
			continue
		}
		if now.Sub(s.LastActivityAt) < r.inactivityTimeout {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, id)
	}
	hook := r.onExpire
	r.mu.Unlock()

	if hook != nil {
		for _, id := range expired {
			hook(id)
		}
	}
}
