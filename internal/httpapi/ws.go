package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/malganisridhargoud/groqchat/internal/assistant"
	"github.com/malganisridhargoud/groqchat/internal/memory"
)

const (
	wsReadLimit    = 64 << 10
	wsReadTimeout  = 5 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

type wsInbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type wsOutbound struct {
	Type      string                     `json:"type"`
	Reply     string                     `json:"reply,omitempty"`
	Sentiment *assistant.SentimentResult `json:"sentiment,omitempty"`
	Synced    bool                       `json:"synced,omitempty"`
	Warning   string                     `json:"warning,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// handleChatWS serves an interactive chat over a single websocket. Each
// inbound "message" frame goes through the same record/complete/record
// path as POST /v1/chat.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		out := s.processWSMessage(r, in)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			return
		}
	}
}

func (s *Server) processWSMessage(r *http.Request, in wsInbound) wsOutbound {
	if in.Type != "message" {
		return wsOutbound{Type: "error", Error: "unknown frame type " + in.Type}
	}
	if in.SessionID == "" || strings.TrimSpace(in.Text) == "" {
		return wsOutbound{Type: "error", Error: "session_id and text are required"}
	}

	ctx := r.Context()
	s.registry.Touch(in.SessionID)

	history, err := s.mem.GetContext(ctx, in.SessionID, 0)
	if err != nil {
		return wsOutbound{Type: "error", Error: err.Error()}
	}
	userTurn, err := s.mem.RecordTurn(ctx, in.SessionID, memory.RoleUser, in.Text)
	if err != nil {
		return wsOutbound{Type: "error", Error: err.Error()}
	}

	started := time.Now()
	reply, err := s.brain.Chat(ctx, history, in.Text)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", in.SessionID).Msg("chat completion failed")
		return wsOutbound{Type: "error", Error: "assistant is unavailable, try again"}
	}
	s.metrics.ObserveChatLatency(time.Since(started))

	assistantTurn, err := s.mem.RecordTurn(ctx, in.SessionID, memory.RoleAssistant, reply)
	if err != nil {
		return wsOutbound{Type: "error", Error: err.Error()}
	}

	sentiment := s.brain.Sentiment(ctx, in.Text)
	out := wsOutbound{
		Type:      "reply",
		Reply:     reply,
		Sentiment: &sentiment,
		Synced:    userTurn.Confirmed && assistantTurn.Confirmed,
	}
	if !out.Synced {
		out.Warning = unsyncedWarning
	}
	return out
}
