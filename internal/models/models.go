package models

import "time"

// User represents an account in the system
type User struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Token     string    `json:"token,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	AvatarKey *string   `json:"avatar_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Person is either the signed-in user or one of their contacts as seen by them.
// Role and ping fields are only meaningful for contacts.
type Person struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Note        string `json:"note"`

	LastCheckedIn   time.Time     `json:"last_checked_in"`
	CheckInInterval time.Duration `json:"-"`

	IsResponder bool `json:"is_responder"`
	IsDependent bool `json:"is_dependent"`

	ManualAlertActive    bool       `json:"manual_alert_active"`
	ManualAlertTimestamp *time.Time `json:"manual_alert_timestamp,omitempty"`

	HasIncomingPing       bool       `json:"has_incoming_ping"`
	IncomingPingTimestamp *time.Time `json:"incoming_ping_timestamp,omitempty"`
	HasOutgoingPing       bool       `json:"has_outgoing_ping"`
	OutgoingPingTimestamp *time.Time `json:"outgoing_ping_timestamp,omitempty"`

	Notify30MinBefore    bool `json:"notify_30min_before"`
	Notify2HoursBefore   bool `json:"notify_2hours_before"`
	NotificationsEnabled bool `json:"notifications_enabled"`
}

// Fields is a partial update of a Person keyed by the Field* names.
type Fields map[string]interface{}

// Field names understood by the synchronization layer.
const (
	FieldName                 = "name"
	FieldPhoneNumber          = "phone_number"
	FieldNote                 = "note"
	FieldLastCheckedIn        = "last_checked_in"
	FieldCheckInInterval      = "check_in_interval"
	FieldManualAlertActive    = "manual_alert_active"
	FieldManualAlertTimestamp = "manual_alert_at"
	FieldNotify30MinBefore    = "notify_30min_before"
	FieldNotify2HoursBefore   = "notify_2hours_before"
	FieldNotificationsEnabled = "notifications_enabled"

	FieldIsResponder  = "is_responder"
	FieldIsDependent  = "is_dependent"
	FieldIncomingPing = "incoming_ping_at"
	FieldOutgoingPing = "outgoing_ping_at"
)

// Names returns the field names present in f.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	return names
}
