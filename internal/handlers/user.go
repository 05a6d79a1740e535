package handlers

import (
	"context"
	"net/http"
	"time"

	"lifesignal-backend/internal/middleware"
	"lifesignal-backend/internal/models"
	"lifesignal-backend/internal/services"
	"lifesignal-backend/internal/session"

	"github.com/rs/zerolog/log"
)

// UserAccounts is the account side of the user service
type UserAccounts interface {
	CreateUser(ctx context.Context, id string, req services.CreateUserRequest) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	RegenerateCode(ctx context.Context, userID string) (string, error)
	UpdatePushToken(ctx context.Context, userID, token string) error
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	users    UserAccounts
	sessions SessionOpener
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserAccounts, sessions SessionOpener) *UserHandler {
	return &UserHandler{
		users:    users,
		sessions: sessions,
	}
}

// MeResponse is the signed-in user's account and annotated record
type MeResponse struct {
	User *models.User  `json:"user"`
	Self session.Entry `json:"self"`
}

// PushTokenRequest represents the body of PUT /me/push-token
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// CreateUser handles POST /api/v1/users. Behind an external identity provider
// the authenticated id is adopted; otherwise a new id and token are issued.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.CreateUserRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	user, err := h.users.CreateUser(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		respondError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("code", user.Code).
		Msg("User created")

	respondJSON(w, http.StatusOK, user)
}

// GetMe handles GET /api/v1/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, h.sessions, func(s *session.Session) {
		user, err := h.users.GetUser(r.Context(), s.UserID())
		if err != nil {
			respondFailure(w, err)
			return
		}
		respondJSON(w, http.StatusOK, MeResponse{User: user, Self: session.NewEntry(s.Self(), time.Now())})
	})
}

// UpdateProfile handles PATCH /api/v1/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req session.ProfileUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.UpdateProfile(r.Context(), req)
		respondSelf(w, p, err)
	})
}

// UpdateNotifications handles PUT /api/v1/me/notifications
func (h *UserHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var req session.Preferences
	if !decodeBody(w, r, &req) {
		return
	}
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.SetPreferences(r.Context(), req)
		respondSelf(w, p, err)
	})
}

// UpdatePushToken handles PUT /api/v1/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req PushTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.users.UpdatePushToken(ctx, userID, req.PushToken); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update push token")
		respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateCode handles POST /api/v1/me/code
func (h *UserHandler) RegenerateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	code, err := h.users.RegenerateCode(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to regenerate code")
		respondFailure(w, err)
		return
	}

	log.Info().Str("user_id", userID).Msg("Code regenerated")
	respondJSON(w, http.StatusOK, map[string]string{"code": code})
}

// respondSelf writes the outcome of an operation on the user's own record
func respondSelf(w http.ResponseWriter, p models.Person, err error) {
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.NewEntry(p, time.Now()))
}
