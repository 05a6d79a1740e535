package checkin

import (
	"fmt"
	"time"

	"lifesignal-backend/internal/models"
)

// CheckIn resets the liveness window. An active manual alert stays active.
func CheckIn(p models.Person, now time.Time) models.Person {
	p.LastCheckedIn = now
	return p
}

// SetInterval changes the length of the liveness window.
func SetInterval(p models.Person, interval time.Duration) (models.Person, error) {
	if interval <= 0 {
		return p, ErrInvalidInterval
	}
	p.CheckInInterval = interval
	return p, nil
}

// TriggerAlert activates the manual alert. Triggering an active alert refreshes
// its timestamp.
func TriggerAlert(p models.Person, now time.Time) models.Person {
	ts := now
	p.ManualAlertActive = true
	p.ManualAlertTimestamp = &ts
	return p
}

// ClearAlert deactivates the manual alert.
func ClearAlert(p models.Person) models.Person {
	p.ManualAlertActive = false
	p.ManualAlertTimestamp = nil
	return p
}

// SetRoles replaces the contact's role flags. A ping that only makes sense
// for a dropped role is cleared with it.
func SetRoles(p models.Person, isResponder, isDependent bool) (models.Person, error) {
	if !isResponder && !isDependent {
		return p, ErrInvalidRoleState
	}
	p.IsResponder = isResponder
	p.IsDependent = isDependent
	if !isResponder {
		p.HasIncomingPing = false
		p.IncomingPingTimestamp = nil
	}
	if !isDependent {
		p.HasOutgoingPing = false
		p.OutgoingPingTimestamp = nil
	}
	return p, nil
}

// SendPing records an outgoing ping to a dependent.
func SendPing(p models.Person, now time.Time) (models.Person, error) {
	if !p.IsDependent {
		return p, fmt.Errorf("%w: only dependents can be pinged", ErrInvalidRoleState)
	}
	ts := now
	p.HasOutgoingPing = true
	p.OutgoingPingTimestamp = &ts
	return p, nil
}

// ClearPing withdraws the outgoing ping to a dependent.
func ClearPing(p models.Person) (models.Person, error) {
	if !p.IsDependent {
		return p, fmt.Errorf("%w: only dependents have outgoing pings", ErrInvalidRoleState)
	}
	p.HasOutgoingPing = false
	p.OutgoingPingTimestamp = nil
	return p, nil
}

// ReceivePing records an incoming ping from a responder.
func ReceivePing(p models.Person, now time.Time) (models.Person, error) {
	if !p.IsResponder {
		return p, fmt.Errorf("%w: only responders can ping you", ErrInvalidRoleState)
	}
	ts := now
	p.HasIncomingPing = true
	p.IncomingPingTimestamp = &ts
	return p, nil
}

// RespondToPing acknowledges the incoming ping from a responder.
func RespondToPing(p models.Person) (models.Person, error) {
	if !p.IsResponder {
		return p, fmt.Errorf("%w: only responders have incoming pings", ErrInvalidRoleState)
	}
	p.HasIncomingPing = false
	p.IncomingPingTimestamp = nil
	return p, nil
}

// RespondToAllPings answers every incoming ping in records. Either every
// pinged record is answered or an error is returned and nothing changes; the
// input slice is never modified.
func RespondToAllPings(records []models.Person) ([]models.Person, error) {
	out := make([]models.Person, len(records))
	for i, p := range records {
		if !p.HasIncomingPing {
			out[i] = p
			continue
		}
		answered, err := RespondToPing(p)
		if err != nil {
			return nil, fmt.Errorf("failed to respond to %s: %w", p.ID, err)
		}
		out[i] = answered
	}
	return out, nil
}

// Diff returns the fields that differ between before and after, in the form
// the synchronization layer persists. Ping flags are carried by their
// timestamps, which are nil when the ping is cleared.
func Diff(before, after models.Person) models.Fields {
	f := models.Fields{}
	if before.Name != after.Name {
		f[models.FieldName] = after.Name
	}
	if before.PhoneNumber != after.PhoneNumber {
		f[models.FieldPhoneNumber] = after.PhoneNumber
	}
	if before.Note != after.Note {
		f[models.FieldNote] = after.Note
	}
	if !before.LastCheckedIn.Equal(after.LastCheckedIn) {
		f[models.FieldLastCheckedIn] = after.LastCheckedIn
	}
	if before.CheckInInterval != after.CheckInInterval {
		f[models.FieldCheckInInterval] = after.CheckInInterval
	}
	if before.ManualAlertActive != after.ManualAlertActive {
		f[models.FieldManualAlertActive] = after.ManualAlertActive
	}
	if !sameTime(before.ManualAlertTimestamp, after.ManualAlertTimestamp) {
		f[models.FieldManualAlertTimestamp] = after.ManualAlertTimestamp
	}
	if before.Notify30MinBefore != after.Notify30MinBefore {
		f[models.FieldNotify30MinBefore] = after.Notify30MinBefore
	}
	if before.Notify2HoursBefore != after.Notify2HoursBefore {
		f[models.FieldNotify2HoursBefore] = after.Notify2HoursBefore
	}
	if before.NotificationsEnabled != after.NotificationsEnabled {
		f[models.FieldNotificationsEnabled] = after.NotificationsEnabled
	}
	if before.IsResponder != after.IsResponder {
		f[models.FieldIsResponder] = after.IsResponder
	}
	if before.IsDependent != after.IsDependent {
		f[models.FieldIsDependent] = after.IsDependent
	}
	if before.HasIncomingPing != after.HasIncomingPing || !sameTime(before.IncomingPingTimestamp, after.IncomingPingTimestamp) {
		f[models.FieldIncomingPing] = pingTime(after.HasIncomingPing, after.IncomingPingTimestamp)
	}
	if before.HasOutgoingPing != after.HasOutgoingPing || !sameTime(before.OutgoingPingTimestamp, after.OutgoingPingTimestamp) {
		f[models.FieldOutgoingPing] = pingTime(after.HasOutgoingPing, after.OutgoingPingTimestamp)
	}
	return f
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func pingTime(active bool, ts *time.Time) *time.Time {
	if !active {
		return nil
	}
	return ts
}
