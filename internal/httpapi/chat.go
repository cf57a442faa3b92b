package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/malganisridhargoud/groqchat/internal/assistant"
	"github.com/malganisridhargoud/groqchat/internal/memory"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply     string                    `json:"reply"`
	Sentiment assistant.SentimentResult `json:"sentiment"`
	Turns     []memory.Turn             `json:"turns"`
	Synced    bool                      `json:"synced"`
	Warning   string                    `json:"warning,omitempty"`
}

const unsyncedWarning = "message saved locally, syncing later"

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message must not be empty")
		return
	}

	ctx := r.Context()
	s.registry.Touch(req.SessionID)

	// Read the window before recording, so the prompt itself is not
	// replayed twice to the model.
	history, err := s.mem.GetContext(ctx, req.SessionID, 0)
	if err != nil {
		respondMemoryError(w, err)
		return
	}

	userTurn, err := s.mem.RecordTurn(ctx, req.SessionID, memory.RoleUser, req.Message)
	if err != nil {
		respondMemoryError(w, err)
		return
	}

	started := time.Now()
	reply, err := s.brain.Chat(ctx, history, req.Message)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", req.SessionID).Msg("chat completion failed")
		respondError(w, http.StatusBadGateway, "provider_error", "assistant is unavailable, try again")
		return
	}
	s.metrics.ObserveChatLatency(time.Since(started))

	assistantTurn, err := s.mem.RecordTurn(ctx, req.SessionID, memory.RoleAssistant, reply)
	if err != nil {
		respondMemoryError(w, err)
		return
	}

	resp := chatResponse{
		Reply:     reply,
		Sentiment: s.brain.Sentiment(ctx, req.Message),
		Turns:     []memory.Turn{userTurn, assistantTurn},
		Synced:    userTurn.Confirmed && assistantTurn.Confirmed,
	}
	if !resp.Synced {
		resp.Warning = unsyncedWarning
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	s.registry.Touch(sessionID)
	turns, err := s.mem.GetContext(r.Context(), sessionID, limit)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	var before int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "before must be an integer sequence number")
			return
		}
		before = n
	}
	pageSize := s.cfg.HistoryPageSize
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "page_size must be a positive integer")
			return
		}
		pageSize = n
	}
	turns, err := s.mem.GetHistory(r.Context(), sessionID, before, pageSize)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	next := int64(0)
	if len(turns) == pageSize {
		next = turns[len(turns)-1].Sequence
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"turns":       turns,
		"next_before": next,
	})
}

func (s *Server) handleDeleteLast(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	if err := s.mem.DeleteLast(r.Context(), sessionID); err != nil {
		respondMemoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	if err := s.mem.ClearHistory(r.Context(), sessionID); err != nil {
		respondMemoryError(w, err)
		return
	}
	s.log.Info().Str("session_id", sessionID).Msg("history cleared")
	w.WriteHeader(http.StatusNoContent)
}
