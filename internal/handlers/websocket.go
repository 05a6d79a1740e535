package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/middleware"
	"lifesignal-backend/internal/session"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var errUnknownMessage = errors.New("unknown message type")

// WSMessage is a message exchanged over the WebSocket connection
type WSMessage struct {
	Type            string        `json:"type"`
	ContactID       string        `json:"contact_id,omitempty"`
	IntervalSeconds int64         `json:"interval_seconds,omitempty"`
	Message         string        `json:"message,omitempty"`
	Retryable       bool          `json:"retryable,omitempty"`
	View            *session.View `json:"view,omitempty"`
}

// WebSocketHandler handles WebSocket connections. Each connection owns one
// session and receives a fresh state whenever a watched record changes.
type WebSocketHandler struct {
	sessions SessionOpener
	verifier middleware.TokenVerifier
	refresh  time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler. refresh is how often
// the countdowns are re-sent when nothing changes.
func NewWebSocketHandler(sessions SessionOpener, verifier middleware.TokenVerifier, refresh time.Duration) *WebSocketHandler {
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &WebSocketHandler{
		sessions: sessions,
		verifier: verifier,
		refresh:  refresh,
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ValidateWebSocketToken(r.Context(), r.URL.Query().Get("token"), h.verifier)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s, err := h.sessions.Open(ctx, middleware.StaticAuthenticator(userID))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to open session")
		respondFailure(w, err)
		return
	}
	defer s.Close()

	if err := s.WatchAll(ctx); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to subscribe to changes")
		respondFailure(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	incoming := make(chan WSMessage)
	go h.readLoop(ctx, conn, userID, incoming)

	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()

	if err := sendState(conn, s); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				log.Info().Str("user_id", userID).Msg("WebSocket connection closed")
				return
			}
			if err := h.handleMessage(ctx, s, msg); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
				if sendErr := sendError(conn, err); sendErr != nil {
					return
				}
			}
			if err := sendState(conn, s); err != nil {
				return
			}
		case change := <-s.Changes():
			if !s.ApplyChange(ctx, change) {
				continue
			}
			if err := sendState(conn, s); err != nil {
				return
			}
		case <-ticker.C:
			if err := sendState(conn, s); err != nil {
				return
			}
		}
	}
}

// readLoop forwards client messages until the connection fails
func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, userID string, out chan<- WSMessage) {
	defer close(out)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			msg = WSMessage{Type: "invalid"}
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage dispatches a client message to the session
func (h *WebSocketHandler) handleMessage(ctx context.Context, s *session.Session, msg WSMessage) error {
	var err error
	switch msg.Type {
	case "check_in":
		_, err = s.CheckIn(ctx)
	case "trigger_alert":
		_, err = s.TriggerAlert(ctx)
	case "clear_alert":
		_, err = s.ClearAlert(ctx)
	case "set_interval":
		_, err = s.SetInterval(ctx, time.Duration(msg.IntervalSeconds)*time.Second)
	case "send_ping":
		_, err = s.SendPing(ctx, msg.ContactID)
	case "clear_ping":
		_, err = s.ClearPing(ctx, msg.ContactID)
	case "respond_ping":
		_, err = s.RespondToPing(ctx, msg.ContactID)
	case "respond_all_pings":
		_, err = s.RespondToAllPings(ctx)
	default:
		err = fmt.Errorf("%w: %q", errUnknownMessage, msg.Type)
	}
	return err
}

// sendState pushes the session's current view
func sendState(conn *websocket.Conn, s *session.Session) error {
	view := s.View(time.Now())
	return conn.WriteJSON(WSMessage{Type: "state", View: &view})
}

// sendError reports a failed client message
func sendError(conn *websocket.Conn, err error) error {
	message := checkin.UserMessage(err)
	if errors.Is(err, errUnknownMessage) {
		message = "Unknown message type"
	}
	return conn.WriteJSON(WSMessage{
		Type:      "error",
		Message:   message,
		Retryable: checkin.Retryable(err),
	})
}
