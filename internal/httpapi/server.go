package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/malganisridhargoud/groqchat/internal/assistant"
	"github.com/malganisridhargoud/groqchat/internal/config"
	"github.com/malganisridhargoud/groqchat/internal/identity"
	"github.com/malganisridhargoud/groqchat/internal/memory"
	"github.com/malganisridhargoud/groqchat/internal/observability"
)

// Memory is the surface the API needs from the memory manager. No handler
// touches either tier directly.
type Memory interface {
	RecordTurn(ctx context.Context, sessionID string, role memory.Role, content string) (memory.Turn, error)
	GetContext(ctx context.Context, sessionID string, limit int) ([]memory.Turn, error)
	GetHistory(ctx context.Context, sessionID string, beforeSequence int64, pageSize int) ([]memory.Turn, error)
	DeleteLast(ctx context.Context, sessionID string) error
	ClearHistory(ctx context.Context, sessionID string) error
	ContextWindow() int
	DurableReady() bool
	CacheReady() bool
	UnconfirmedCount() int
}

// Assistant is the hosted-model surface used by the chat and media routes.
type Assistant interface {
	Chat(ctx context.Context, history []memory.Turn, prompt string) (string, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
	Sentiment(ctx context.Context, text string) assistant.SentimentResult
	DescribeImage(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error)
}

// Identity authenticates accounts for session-scoped memory.
type Identity interface {
	Register(ctx context.Context, username, password string) (identity.User, error)
	Authenticate(ctx context.Context, username, password string) (identity.User, error)
}

type Server struct {
	cfg      config.Config
	mem      Memory
	brain    Assistant
	ident    Identity
	registry *identity.Registry
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, mem Memory, brain Assistant, ident Identity, registry *identity.Registry, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		mem:      mem,
		brain:    brain,
		ident:    ident,
		registry: registry,
		metrics:  metrics,
		log:      logger.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections by default, so other
				// sites cannot drive a user's chat session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// requestID tags every request with a correlation ID, echoed back in the
// X-Request-ID header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/auth/register", s.handleRegister)
	r.Post("/v1/auth/login", s.handleLogin)
	r.Post("/v1/sessions/guest", s.handleGuestSession)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/context", s.handleGetContext)
	r.Get("/v1/history", s.handleGetHistory)
	r.Delete("/v1/history/last", s.handleDeleteLast)
	r.Delete("/v1/history", s.handleClearHistory)

	r.Post("/v1/voice/transcribe", s.handleTranscribe)
	r.Post("/v1/vision/describe", s.handleDescribeImage)

	r.Get("/ws/chat", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"durable_store":     tierStatus(s.mem.DurableReady()),
		"hot_cache":         tierStatus(s.mem.CacheReady()),
		"unconfirmed_turns": s.mem.UnconfirmedCount(),
	})
}

func tierStatus(ready bool) string {
	if ready {
		return "connected"
	}
	return "degraded"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondMemoryError maps the memory error taxonomy onto HTTP statuses:
// validation errors are the caller's fault, a durable-store outage on a
// history read is retryable.
func respondMemoryError(w http.ResponseWriter, err error) {
	var verr *memory.ValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, "invalid_request", verr.Error())
		return
	}
	if errors.Is(err, memory.ErrStoreUnavailable) {
		w.Header().Set("Retry-After", "5")
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
