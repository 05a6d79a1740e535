package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/middleware"
	"lifesignal-backend/internal/models"
	"lifesignal-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sync     *memSync
	accounts *fakeAccounts
	router   http.Handler
	tokens   tokenTable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now().UTC()
	person := func(id, name string) models.Person {
		return models.Person{
			ID:                   id,
			Name:                 name,
			LastCheckedIn:        now.Add(-time.Hour),
			CheckInInterval:      24 * time.Hour,
			NotificationsEnabled: true,
			Notify30MinBefore:    true,
		}
	}

	sync := newMemSync(person("me", "Mia"), person("resp", "Rita"), person("dep", "Dan"), person("stranger", "Sam"))
	sync.link("me", "resp", true, false)
	sync.link("me", "dep", false, true)

	f := &fixture{
		sync:     sync,
		accounts: &fakeAccounts{},
		tokens:   tokenTable{"tok-me": "me", "tok-dep": "dep"},
	}

	sessions := services.NewSessionFactory(sync, nil, codeTable{"STRNGR": "stranger", "MEMEME": "me"})
	users := NewUserHandler(f.accounts, sessions)
	checkins := NewCheckInHandler(sessions)
	contacts := NewContactHandler(sessions)
	avatars := NewAvatarHandler(fakePresigner{})

	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", users.CreateUser)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(f.tokens))
			r.Get("/me", users.GetMe)
			r.Patch("/me", users.UpdateProfile)
			r.Put("/me/notifications", users.UpdateNotifications)
			r.Put("/me/push-token", users.UpdatePushToken)
			r.Post("/me/code", users.RegenerateCode)
			r.Post("/me/avatar", avatars.UploadAvatar)
			r.Post("/checkin", checkins.CheckIn)
			r.Put("/checkin/interval", checkins.SetInterval)
			r.Post("/alert", checkins.TriggerAlert)
			r.Delete("/alert", checkins.ClearAlert)
			r.Get("/contacts", contacts.ListContacts)
			r.Post("/contacts", contacts.AddContact)
			r.Delete("/contacts/{id}", contacts.DeleteContact)
			r.Put("/contacts/{id}/roles", contacts.UpdateRoles)
			r.Post("/contacts/{id}/ping", contacts.SendPing)
			r.Delete("/contacts/{id}/ping", contacts.ClearPing)
			r.Post("/contacts/{id}/ping/respond", contacts.RespondToPing)
			r.Post("/pings/respond-all", contacts.RespondToAllPings)
		})
	})
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{checkin.ErrNotAuthenticated, http.StatusUnauthorized},
		{checkin.ErrNotFound, http.StatusNotFound},
		{checkin.ErrDuplicateContact, http.StatusConflict},
		{checkin.ErrAlreadyExists, http.StatusConflict},
		{checkin.ErrInvalidRoleState, http.StatusBadRequest},
		{checkin.ErrInvalidInterval, http.StatusBadRequest},
		{checkin.ErrSelfRelationship, http.StatusBadRequest},
		{checkin.ErrInvalidIdentifier, http.StatusBadRequest},
		{services.ErrUnsupportedContentType, http.StatusBadRequest},
		{checkin.AsSyncFailure(errors.New("timeout")), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", checkin.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "", http.MethodPost, "/api/v1/checkin", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, "nope", http.MethodPost, "/api/v1/checkin", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithSession_NoUser(t *testing.T) {
	f := newFixture(t)
	h := NewCheckInHandler(services.NewSessionFactory(f.sync, nil, nil))

	rec := httptest.NewRecorder()
	h.CheckIn(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkin", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Please sign in again.", body["error"])
	assert.Equal(t, false, body["retryable"])
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "", http.MethodPost, "/api/v1/users", services.CreateUserRequest{Name: "Nora"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "new-user", body["id"])
	assert.Equal(t, "tok-new-user", body["token"])
	assert.Equal(t, []string{"Nora"}, f.accounts.created)
}

func TestGetMe(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "tok-me", http.MethodGet, "/api/v1/me", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	user := body["user"].(map[string]interface{})
	self := body["self"].(map[string]interface{})
	assert.Equal(t, "ABC123", user["code"])
	assert.Equal(t, "Mia", self["name"])
	assert.Equal(t, "normal", self["status"])
	assert.Equal(t, float64(86400), self["check_in_interval_seconds"])
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	before := f.sync.people["me"].LastCheckedIn

	rec := f.do(t, "tok-me", http.MethodPost, "/api/v1/checkin", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "normal", decode(t, rec)["status"])
	assert.True(t, f.sync.people["me"].LastCheckedIn.After(before))
}

func TestSetInterval(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodPut, "/api/v1/checkin/interval", IntervalRequest{IntervalSeconds: 3600})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3600), decode(t, rec)["check_in_interval_seconds"])
	assert.Equal(t, time.Hour, f.sync.people["me"].CheckInInterval)

	rec = f.do(t, "tok-me", http.MethodPut, "/api/v1/checkin/interval", IntervalRequest{IntervalSeconds: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Pick a check-in interval longer than zero.", body["error"])
	assert.Equal(t, false, body["retryable"])
	assert.Equal(t, time.Hour, f.sync.people["me"].CheckInInterval)
}

func TestInvalidBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/checkin/interval", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer tok-me")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlert(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodPost, "/api/v1/alert", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "alerting", body["status"])
	assert.Equal(t, true, body["manual_alert_active"])

	rec = f.do(t, "tok-me", http.MethodDelete, "/api/v1/alert", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "normal", decode(t, rec)["status"])
	assert.False(t, f.sync.people["me"].ManualAlertActive)
}

func TestSyncFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.sync.updateErr = errors.New("connection reset")

	rec := f.do(t, "tok-me", http.MethodPost, "/api/v1/alert", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Couldn't reach the server. Try again.", body["error"])
	assert.Equal(t, true, body["retryable"])
	assert.False(t, f.sync.people["me"].ManualAlertActive)
}

func TestProfileAndPreferences(t *testing.T) {
	f := newFixture(t)
	name := "Mia R."

	rec := f.do(t, "tok-me", http.MethodPatch, "/api/v1/me", map[string]string{"name": name})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, name, f.sync.people["me"].Name)

	rec = f.do(t, "tok-me", http.MethodPut, "/api/v1/me/notifications", map[string]bool{
		"notifications_enabled": true,
		"notify_2hours_before":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.sync.people["me"].Notify2HoursBefore)
	assert.False(t, f.sync.people["me"].Notify30MinBefore)
}

func TestPushTokenAndCode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodPut, "/api/v1/me/push-token", PushTokenRequest{PushToken: "device"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "device", f.accounts.pushed["me"])

	rec = f.do(t, "tok-me", http.MethodPost, "/api/v1/me/code", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "XYZ789", decode(t, rec)["code"])

	f.accounts.codeErr = errors.New("db down")
	rec = f.do(t, "tok-me", http.MethodPost, "/api/v1/me/code", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAddContact(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodPost, "/api/v1/contacts", AddContactRequest{Code: "STRNGR", IsResponder: true})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["existed"])
	assert.Equal(t, "Sam", body["contact"].(map[string]interface{})["name"])
	assert.True(t, f.sync.rels[[2]string{"stranger", "me"}].IsDependent)

	rec = f.do(t, "tok-me", http.MethodPost, "/api/v1/contacts", AddContactRequest{Code: "STRNGR", IsResponder: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["existed"])

	tests := []struct {
		name string
		req  AddContactRequest
		msg  string
	}{
		{"self", AddContactRequest{Code: "MEMEME", IsDependent: true}, "You can't add yourself as a contact."},
		{"unknown code", AddContactRequest{Code: "NOPE00", IsDependent: true}, "That QR code isn't valid."},
		{"no roles", AddContactRequest{Code: "STRNGR"}, "Choose responder, dependent, or both."},
		{"empty code", AddContactRequest{IsDependent: true}, "code is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "tok-me", http.MethodPost, "/api/v1/contacts", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec)["error"])
		})
	}
}

func TestListContacts(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "tok-me", http.MethodGet, "/api/v1/contacts", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	responders := body["responders"].([]interface{})
	dependents := body["dependents"].([]interface{})
	require.Len(t, responders, 1)
	require.Len(t, dependents, 1)
	assert.Equal(t, "resp", responders[0].(map[string]interface{})["id"])
	assert.Equal(t, "dep", dependents[0].(map[string]interface{})["id"])
	assert.Equal(t, float64(0), body["pending_pings"])
}

func TestDeleteContact(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodDelete, "/api/v1/contacts/dep", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := f.sync.rels[[2]string{"dep", "me"}]
	assert.False(t, ok)

	rec = f.do(t, "tok-me", http.MethodDelete, "/api/v1/contacts/dep", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRoles(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodPut, "/api/v1/contacts/resp/roles", RolesRequest{IsResponder: true, IsDependent: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.sync.rels[[2]string{"resp", "me"}].IsResponder)

	rec = f.do(t, "tok-me", http.MethodPut, "/api/v1/contacts/resp/roles", RolesRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "tok-me", http.MethodPut, "/api/v1/contacts/ghost/roles", RolesRequest{IsResponder: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPingRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodPost, "/api/v1/contacts/resp/ping", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "tok-me", http.MethodPost, "/api/v1/contacts/dep/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["has_outgoing_ping"])
	assert.Equal(t, "pinged_outgoing", body["status"])
	assert.True(t, f.sync.rels[[2]string{"dep", "me"}].HasIncomingPing)

	rec = f.do(t, "tok-dep", http.MethodGet, "/api/v1/contacts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["pending_pings"])

	rec = f.do(t, "tok-dep", http.MethodPost, "/api/v1/contacts/me/ping/respond", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["has_incoming_ping"])
	assert.False(t, f.sync.rels[[2]string{"me", "dep"}].HasOutgoingPing)
}

func TestClearPing(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, "tok-me", http.MethodPost, "/api/v1/contacts/dep/ping", nil).Code)

	rec := f.do(t, "tok-me", http.MethodDelete, "/api/v1/contacts/dep/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.sync.rels[[2]string{"dep", "me"}].HasIncomingPing)
}

func TestRespondToAllPings(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, "tok-me", http.MethodPost, "/api/v1/contacts/dep/ping", nil).Code)

	rec := f.do(t, "tok-dep", http.MethodPost, "/api/v1/pings/respond-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["pending_pings"])
	assert.False(t, f.sync.rels[[2]string{"me", "dep"}].HasOutgoingPing)

	rec = f.do(t, "tok-dep", http.MethodPost, "/api/v1/pings/respond-all", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadAvatar(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "tok-me", http.MethodPost, "/api/v1/me/avatar", services.AvatarUploadRequest{ContentType: "image/png"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "avatars/me/a.jpg", decode(t, rec)["key"])

	rec = f.do(t, "tok-me", http.MethodPost, "/api/v1/me/avatar", services.AvatarUploadRequest{ContentType: "image/gif"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
