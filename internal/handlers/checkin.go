package handlers

import (
	"net/http"
	"time"

	"lifesignal-backend/internal/session"
)

// CheckInHandler handles check-in and alert requests
type CheckInHandler struct {
	sessions SessionOpener
}

// NewCheckInHandler creates a new check-in handler
func NewCheckInHandler(sessions SessionOpener) *CheckInHandler {
	return &CheckInHandler{sessions: sessions}
}

// IntervalRequest represents the body of PUT /checkin/interval
type IntervalRequest struct {
	IntervalSeconds int64 `json:"interval_seconds"`
}

// CheckIn handles POST /api/v1/checkin
func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.CheckIn(r.Context())
		respondSelf(w, p, err)
	})
}

// SetInterval handles PUT /api/v1/checkin/interval
func (h *CheckInHandler) SetInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.SetInterval(r.Context(), time.Duration(req.IntervalSeconds)*time.Second)
		respondSelf(w, p, err)
	})
}

// TriggerAlert handles POST /api/v1/alert
func (h *CheckInHandler) TriggerAlert(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.TriggerAlert(r.Context())
		respondSelf(w, p, err)
	})
}

// ClearAlert handles DELETE /api/v1/alert
func (h *CheckInHandler) ClearAlert(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, h.sessions, func(s *session.Session) {
		p, err := s.ClearAlert(r.Context())
		respondSelf(w, p, err)
	})
}
