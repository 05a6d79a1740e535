package handlers

import (
	"net/http"
	"time"

	"lifesignal-backend/internal/middleware"
	"lifesignal-backend/internal/models"
	"lifesignal-backend/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ContactHandler handles contact-related HTTP requests
type ContactHandler struct {
	sessions SessionOpener
}

// NewContactHandler creates a new contact handler
func NewContactHandler(sessions SessionOpener) *ContactHandler {
	return &ContactHandler{sessions: sessions}
}

// AddContactRequest represents the request body for adding a contact
type AddContactRequest struct {
	Code        string `json:"code"`
	IsResponder bool   `json:"is_responder"`
	IsDependent bool   `json:"is_dependent"`
}

// RolesRequest represents the request body for changing a contact's roles
type RolesRequest struct {
	IsResponder bool `json:"is_responder"`
	IsDependent bool `json:"is_dependent"`
}

// ListContacts handles GET /api/v1/contacts
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, h.sessions, func(s *session.Session) {
		respondJSON(w, http.StatusOK, s.View(time.Now()))
	})
}

// AddContact handles POST /api/v1/contacts
func (h *ContactHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		respondError(w, "code is required", http.StatusBadRequest)
		return
	}

	withSession(w, r, h.sessions, func(s *session.Session) {
		result, err := s.AddContact(r.Context(), req.Code, req.IsResponder, req.IsDependent)
		if err != nil {
			log.Warn().Err(err).Str("user_id", s.UserID()).Msg("Failed to add contact")
			respondFailure(w, err)
			return
		}

		status := http.StatusCreated
		if result.Existed {
			status = http.StatusOK
		}
		respondJSON(w, status, result)
	})
}

// DeleteContact handles DELETE /api/v1/contacts/{id}
func (h *ContactHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "id")

	withSession(w, r, h.sessions, func(s *session.Session) {
		if err := s.RemoveContact(r.Context(), contactID); err != nil {
			log.Warn().Err(err).Str("user_id", s.UserID()).Str("contact_id", contactID).Msg("Failed to remove contact")
			respondFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// UpdateRoles handles PUT /api/v1/contacts/{id}/roles
func (h *ContactHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	contactID := chi.URLParam(r, "id")

	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.UpdateRoles(r.Context(), contactID, req.IsResponder, req.IsDependent)
		respondContact(w, p, err)
	})
}

// SendPing handles POST /api/v1/contacts/{id}/ping
func (h *ContactHandler) SendPing(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "id")
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.SendPing(r.Context(), contactID)
		respondContact(w, p, err)
	})
}

// ClearPing handles DELETE /api/v1/contacts/{id}/ping
func (h *ContactHandler) ClearPing(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "id")
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.ClearPing(r.Context(), contactID)
		respondContact(w, p, err)
	})
}

// RespondToPing handles POST /api/v1/contacts/{id}/ping/respond
func (h *ContactHandler) RespondToPing(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "id")
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.RespondToPing(r.Context(), contactID)
		respondContact(w, p, err)
	})
}

// RespondToAllPings handles POST /api/v1/pings/respond-all
func (h *ContactHandler) RespondToAllPings(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, h.sessions, func(s *session.Session) {
		if _, err := s.RespondToAllPings(r.Context()); err != nil {
			log.Warn().Err(err).Str("user_id", middleware.GetUserID(r.Context())).Msg("Failed to respond to pings")
			respondFailure(w, err)
			return
		}
		respondJSON(w, http.StatusOK, s.View(time.Now()))
	})
}

func respondContact(w http.ResponseWriter, p models.Person, err error) {
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.NewEntry(p, time.Now()))
}
