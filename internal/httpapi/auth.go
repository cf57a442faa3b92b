package httpapi

import (
	"errors"
	"net/http"

	"github.com/malganisridhargoud/groqchat/internal/identity"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, err := s.ident.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			respondError(w, http.StatusConflict, "user_exists", "username already taken")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.registry.Track(user.ID, identity.KindUser)
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	respondJSON(w, http.StatusCreated, userResponse{UserID: user.ID, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, err := s.ident.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "wrong username or password")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	s.registry.Track(user.ID, identity.KindUser)
	respondJSON(w, http.StatusOK, userResponse{UserID: user.ID, Username: user.Username})
}

func (s *Server) handleGuestSession(w http.ResponseWriter, _ *http.Request) {
	sessionID := identity.NewGuestID()
	s.registry.Track(sessionID, identity.KindGuest)
	s.metrics.SetActiveGuests(s.registry.GuestCount())
	s.log.Info().Str("session_id", sessionID).Msg("guest session opened")
	respondJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}
