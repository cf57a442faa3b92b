package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/malganisridhargoud/groqchat/internal/observability"
)

// Config bounds the manager's behavior.
type Config struct {
	// ContextWindow is the number of recent turns the hot cache keeps per
	// session.
	ContextWindow int
	// ContentMaxBytes caps the content payload of a single turn.
	ContentMaxBytes int
	// OpTimeout bounds every individual store/cache call.
	OpTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = 5
	}
	if c.ContentMaxBytes <= 0 {
		c.ContentMaxBytes = 8192
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	return c
}

// Manager coordinates the two memory tiers. Writes go through the durable
// store and then the hot cache; context reads prefer the cache and fall
// back to the store. Either tier may be nil, which leaves it permanently
// degraded: the manager keeps serving with whatever remains.
type Manager struct {
	store   DurableStore
	cache   HotCache
	cfg     Config
	log     zerolog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// sessionState serializes sequence assignment for one session and queues
// turns accepted while the durable store is unreachable.
type sessionState struct {
	mu sync.Mutex
	// nextSeq is the next sequence to hand out when neither tier can be
	// consulted. 0 means unknown.
	nextSeq int64
	// pending holds unconfirmed turns in assignment order.
	pending []Turn
}

func NewManager(store DurableStore, cache HotCache, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		store:    store,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		log:      logger.With().Str("component", "memory").Logger(),
		metrics:  metrics,
		sessions: make(map[string]*sessionState),
	}
}

// ContextWindow reports the configured window size.
func (m *Manager) ContextWindow() int { return m.cfg.ContextWindow }

// DurableReady reports whether a durable store was configured.
func (m *Manager) DurableReady() bool { return m.store != nil }

// CacheReady reports whether a hot cache was configured.
func (m *Manager) CacheReady() bool { return m.cache != nil }

// RecordTurn validates the input, assigns the session's next sequence,
// persists the turn, and writes it through to the hot cache. When the
// durable store is unreachable the turn is still accepted: it stays queued
// as unconfirmed until reconciliation flushes it.
func (m *Manager) RecordTurn(ctx context.Context, sessionID string, role Role, content string) (Turn, error) {
	if err := m.validateRecord(sessionID, role, content); err != nil {
		return Turn{}, err
	}

	st := m.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.flushPendingLocked(ctx, sessionID, st)

	turn := Turn{
		SessionID: sessionID,
		Sequence:  m.nextSequenceLocked(ctx, sessionID, st),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	// An earlier unflushed turn means the store is still behind; appending
	// around the queue would break original-order reconciliation.
	if m.store != nil && len(st.pending) == 0 {
		opCtx, cancel := m.opCtx(ctx)
		_, err := m.store.Append(opCtx, turn)
		cancel()
		if err != nil {
			m.log.Error().Err(err).
				Str("session_id", sessionID).
				Str("op", "record_turn").
				Msg("durable store write failed, accepting turn unconfirmed")
		} else {
			turn.Confirmed = true
		}
	}
	if !turn.Confirmed {
		st.pending = append(st.pending, turn)
		m.metrics.IncDegradedWrite()
	}
	st.nextSeq = turn.Sequence + 1

	m.pushToCache(ctx, sessionID, turn)
	m.metrics.IncTurnRecorded(string(turn.Role), turn.Confirmed)
	return turn, nil
}

// GetContext returns the most recent limit turns, ascending by sequence.
// limit == 0 means the configured context window. A cold or failing cache
// degrades silently to the durable store; if that is down too, the call
// still succeeds with whatever tier answered.
func (m *Manager) GetContext(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if limit < 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	if limit == 0 {
		limit = m.cfg.ContextWindow
	}

	st := m.session(sessionID)
	st.mu.Lock()
	m.flushPendingLocked(ctx, sessionID, st)
	pending := append([]Turn(nil), st.pending...)
	st.mu.Unlock()

	var window []Turn
	cacheOK := false
	if m.cache != nil {
		opCtx, cancel := m.opCtx(ctx)
		w, err := m.cache.ReadWindow(opCtx, sessionID, limit)
		cancel()
		if err != nil {
			m.metrics.IncCacheError("read_window")
			m.log.Warn().Err(err).
				Str("session_id", sessionID).
				Msg("hot cache read failed, falling back to durable store")
		} else {
			cacheOK = true
			window = w
			if len(window) >= limit {
				m.metrics.IncContextRead("cache")
				return window, nil
			}
		}
	}

	// Cache cold, short, or unavailable: the durable store answers, and the
	// cache is repopulated best-effort.
	if turns, ok := m.readRecentFromStore(ctx, sessionID, limit, pending); ok {
		m.metrics.IncContextRead("store")
		m.repopulateCache(ctx, sessionID, turns)
		return turns, nil
	}

	m.metrics.IncContextRead("degraded")
	if cacheOK {
		return window, nil
	}
	if len(pending) > limit {
		pending = pending[len(pending)-limit:]
	}
	return pending, nil
}

// GetHistory pages the full durable record, descending by sequence and
// exclusive of beforeSequence (<= 0 starts from the newest). The hot cache
// is never consulted; without a durable store there is no fallback tier, so
// the failure is surfaced as retryable.
func (m *Manager) GetHistory(ctx context.Context, sessionID string, beforeSequence int64, pageSize int) ([]Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if pageSize <= 0 {
		return nil, &ValidationError{Field: "page_size", Reason: "must be positive"}
	}

	st := m.session(sessionID)
	st.mu.Lock()
	m.flushPendingLocked(ctx, sessionID, st)
	st.mu.Unlock()

	if m.store == nil {
		return nil, fmt.Errorf("get_history session %s: %w", sessionID, ErrStoreUnavailable)
	}

	opCtx, cancel := m.opCtx(ctx)
	defer cancel()
	turns, err := m.store.QueryPage(opCtx, sessionID, beforeSequence, pageSize)
	if err != nil {
		return nil, fmt.Errorf("get_history session %s: %w: %v", sessionID, ErrStoreUnavailable, err)
	}
	return turns, nil
}

// DeleteLast removes the most recent turn from both tiers.
func (m *Manager) DeleteLast(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	st := m.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if n := len(st.pending); n > 0 {
		st.pending = st.pending[:n-1]
	} else if m.store != nil {
		opCtx, cancel := m.opCtx(ctx)
		err := m.store.DeleteLast(opCtx, sessionID)
		cancel()
		if err != nil {
			return fmt.Errorf("delete last turn for session %s: %w: %v", sessionID, ErrStoreUnavailable, err)
		}
	}
	st.nextSeq = 0

	if m.cache != nil {
		opCtx, cancel := m.opCtx(ctx)
		err := m.cache.DropNewest(opCtx, sessionID)
		cancel()
		if err != nil {
			m.metrics.IncCacheError("drop_newest")
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("hot cache drop failed")
		}
	}
	return nil
}

// ClearHistory deletes every turn a session owns from both tiers.
func (m *Manager) ClearHistory(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	st := m.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pending = nil
	st.nextSeq = 0

	if m.cache != nil {
		opCtx, cancel := m.opCtx(ctx)
		err := m.cache.Clear(opCtx, sessionID)
		cancel()
		if err != nil {
			m.metrics.IncCacheError("clear")
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("hot cache clear failed")
		}
	}
	if m.store != nil {
		opCtx, cancel := m.opCtx(ctx)
		err := m.store.DeleteSession(opCtx, sessionID)
		cancel()
		if err != nil {
			return fmt.Errorf("clear history for session %s: %w: %v", sessionID, ErrStoreUnavailable, err)
		}
	}
	return nil
}

// Reconcile attempts to flush unconfirmed turns for every known session.
func (m *Manager) Reconcile(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		st := m.session(id)
		st.mu.Lock()
		m.flushPendingLocked(ctx, id, st)
		st.mu.Unlock()
	}
}

// StartReconciler retries unconfirmed flushes periodically until ctx ends.
func (m *Manager) StartReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Reconcile(ctx)
			}
		}
	}()
}

// UnconfirmedCount reports turns still awaiting a durable write.
func (m *Manager) UnconfirmedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, st := range m.sessions {
		st.mu.Lock()
		total += len(st.pending)
		st.mu.Unlock()
	}
	return total
}

// ForgetSession drops in-process sequence state for an ended session.
// State holding unconfirmed turns is kept until reconciliation drains it.
func (m *Manager) ForgetSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	st.mu.Lock()
	pending := len(st.pending)
	st.mu.Unlock()
	if pending == 0 {
		delete(m.sessions, sessionID)
	}
}

func (m *Manager) validateRecord(sessionID string, role Role, content string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if !role.Valid() {
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("must be %q or %q", RoleUser, RoleAssistant)}
	}
	if content == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if len(content) > m.cfg.ContentMaxBytes {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d byte cap", m.cfg.ContentMaxBytes)}
	}
	return nil
}

func (m *Manager) session(sessionID string) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		m.sessions[sessionID] = st
	}
	return st
}

func (m *Manager) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.OpTimeout)
}

// nextSequenceLocked derives the next sequence for the session: the queue
// tail while degraded, otherwise the durable store's confirmed max, then
// the in-process counter, then the hot cache's newest entry.
func (m *Manager) nextSequenceLocked(ctx context.Context, sessionID string, st *sessionState) int64 {
	if n := len(st.pending); n > 0 {
		return st.pending[n-1].Sequence + 1
	}
	if m.store != nil {
		opCtx, cancel := m.opCtx(ctx)
		max, err := m.store.MaxSequence(opCtx, sessionID)
		cancel()
		if err == nil {
			// Sequences never move backwards within a process.
			if st.nextSeq > max+1 {
				return st.nextSeq
			}
			return max + 1
		}
		m.log.Warn().Err(err).
			Str("session_id", sessionID).
			Msg("max sequence lookup failed, deriving from hot cache")
	}
	if st.nextSeq > 0 {
		return st.nextSeq
	}
	if m.cache != nil {
		opCtx, cancel := m.opCtx(ctx)
		window, err := m.cache.ReadWindow(opCtx, sessionID, 1)
		cancel()
		if err == nil && len(window) > 0 {
			return window[len(window)-1].Sequence + 1
		}
	}
	return 1
}

// flushPendingLocked replays queued unconfirmed turns into the durable
// store in original order. If a confirmed row already owns a queued
// sequence (crash between the durable and cache writes), the durable side
// wins and the queued turn is replayed on top with a fresh sequence.
func (m *Manager) flushPendingLocked(ctx context.Context, sessionID string, st *sessionState) {
	if len(st.pending) == 0 || m.store == nil {
		return
	}

	opCtx, cancel := m.opCtx(ctx)
	defer cancel()

	max, err := m.store.MaxSequence(opCtx, sessionID)
	if err != nil {
		return
	}

	renumbered := false
	next := max + 1
	flushed := 0
	for _, turn := range st.pending {
		if turn.Sequence < next {
			turn.Sequence = next
			renumbered = true
		}
		turn.Confirmed = true
		if _, err := m.store.Append(opCtx, turn); err != nil {
			m.log.Error().Err(err).
				Str("session_id", sessionID).
				Int64("sequence", turn.Sequence).
				Msg("reconciliation halted, will retry")
			break
		}
		next = turn.Sequence + 1
		flushed++
	}

	if flushed > 0 {
		st.pending = append([]Turn(nil), st.pending[flushed:]...)
		if st.nextSeq < next {
			st.nextSeq = next
		}
		m.metrics.AddReconciledTurns(flushed)
		m.log.Info().
			Str("session_id", sessionID).
			Int("turns", flushed).
			Msg("reconciled unconfirmed turns")
	}
	if renumbered && len(st.pending) == 0 {
		m.refreshCache(ctx, sessionID)
	}
}

func (m *Manager) pushToCache(ctx context.Context, sessionID string, turn Turn) {
	if m.cache == nil {
		return
	}
	opCtx, cancel := m.opCtx(ctx)
	defer cancel()

	n, err := m.cache.Push(opCtx, turn)
	if err != nil {
		m.metrics.IncCacheError("push")
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("hot cache write failed")
		return
	}
	if n > int64(m.cfg.ContextWindow) {
		if err := m.cache.EvictOldest(opCtx, sessionID); err != nil {
			m.metrics.IncCacheError("evict")
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("hot cache eviction failed")
		}
	}
}

func (m *Manager) readRecentFromStore(ctx context.Context, sessionID string, limit int, pending []Turn) ([]Turn, bool) {
	if m.store == nil {
		return nil, false
	}
	opCtx, cancel := m.opCtx(ctx)
	defer cancel()

	turns, err := m.store.QueryRecent(opCtx, sessionID, limit)
	if err != nil {
		m.log.Warn().Err(err).
			Str("session_id", sessionID).
			Msg("durable store context read failed")
		return nil, false
	}
	// Queued unconfirmed turns are newer than anything durable.
	turns = append(turns, pending...)
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, true
}

func (m *Manager) repopulateCache(ctx context.Context, sessionID string, turns []Turn) {
	if m.cache == nil || len(turns) == 0 {
		return
	}
	if len(turns) > m.cfg.ContextWindow {
		turns = turns[len(turns)-m.cfg.ContextWindow:]
	}
	opCtx, cancel := m.opCtx(ctx)
	defer cancel()

	if err := m.cache.Clear(opCtx, sessionID); err != nil {
		m.metrics.IncCacheError("clear")
		return
	}
	for _, turn := range turns {
		if _, err := m.cache.Push(opCtx, turn); err != nil {
			m.metrics.IncCacheError("push")
			return
		}
	}
}

// refreshCache rebuilds the session's window from the durable store after a
// renumbering reconciliation, so cached sequences match the confirmed ones.
func (m *Manager) refreshCache(ctx context.Context, sessionID string) {
	if m.cache == nil || m.store == nil {
		return
	}
	opCtx, cancel := m.opCtx(ctx)
	defer cancel()

	turns, err := m.store.QueryRecent(opCtx, sessionID, m.cfg.ContextWindow)
	if err != nil {
		return
	}
	m.repopulateCache(ctx, sessionID, turns)
}
