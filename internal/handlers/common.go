package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/middleware"
	"lifesignal-backend/internal/services"
	"lifesignal-backend/internal/session"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// SessionOpener opens a session for the user resolved by auth
type SessionOpener interface {
	Open(ctx context.Context, auth session.Authenticator) (*session.Session, error)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondFailure maps a domain error to its status and user-facing message
func respondFailure(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), ErrorResponse{
		Error:     checkin.UserMessage(err),
		Retryable: checkin.Retryable(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkin.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, checkin.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkin.ErrDuplicateContact), errors.Is(err, checkin.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, checkin.ErrInvalidRoleState),
		errors.Is(err, checkin.ErrInvalidInterval),
		errors.Is(err, checkin.ErrSelfRelationship),
		errors.Is(err, checkin.ErrInvalidIdentifier),
		errors.Is(err, services.ErrUnsupportedContentType):
		return http.StatusBadRequest
	case errors.Is(err, checkin.ErrSyncFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// withSession opens a session for the request's user, runs fn and closes it
func withSession(w http.ResponseWriter, r *http.Request, sessions SessionOpener, fn func(*session.Session)) {
	s, err := sessions.Open(r.Context(), middleware.Authenticator{})
	if err != nil {
		log.Error().Err(err).Str("user_id", middleware.GetUserID(r.Context())).Msg("Failed to open session")
		respondFailure(w, err)
		return
	}
	defer s.Close()
	fn(s)
}

// decodeBody decodes the JSON request body into v, responding 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
