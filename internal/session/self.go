package session

import (
	"context"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"
)

// ProfileUpdate carries the display fields to change. Nil fields are kept.
type ProfileUpdate struct {
	Name        *string `json:"name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Note        *string `json:"note,omitempty"`
}

// Preferences are the user's reminder settings.
type Preferences struct {
	Enabled            bool `json:"notifications_enabled"`
	Notify30MinBefore  bool `json:"notify_30min_before"`
	Notify2HoursBefore bool `json:"notify_2hours_before"`
}

// CheckIn resets the user's liveness window and reschedules reminders.
func (s *Session) CheckIn(ctx context.Context) (models.Person, error) {
	now := s.now()
	p, err := s.mutateSelf(ctx, func(p models.Person) (models.Person, error) {
		return checkin.CheckIn(p, now), nil
	})
	if err != nil {
		return p, err
	}

	s.log.Info().Time("expires_at", checkin.ExpirationOf(p)).Msg("Checked in")
	s.rescheduleReminders(ctx)
	return p, nil
}

// SetInterval changes the check-in interval and reschedules reminders.
func (s *Session) SetInterval(ctx context.Context, interval time.Duration) (models.Person, error) {
	p, err := s.mutateSelf(ctx, func(p models.Person) (models.Person, error) {
		return checkin.SetInterval(p, interval)
	})
	if err != nil {
		return p, err
	}

	s.rescheduleReminders(ctx)
	return p, nil
}

// TriggerAlert raises the manual alert.
func (s *Session) TriggerAlert(ctx context.Context) (models.Person, error) {
	now := s.now()
	p, err := s.mutateSelf(ctx, func(p models.Person) (models.Person, error) {
		return checkin.TriggerAlert(p, now), nil
	})
	if err != nil {
		return p, err
	}

	s.log.Warn().Msg("Manual alert triggered")
	s.notify(ctx, "Alert sent", "Your responders have been notified.")
	return p, nil
}

// ClearAlert lowers the manual alert.
func (s *Session) ClearAlert(ctx context.Context) (models.Person, error) {
	p, err := s.mutateSelf(ctx, func(p models.Person) (models.Person, error) {
		return checkin.ClearAlert(p), nil
	})
	if err != nil {
		return p, err
	}

	s.log.Info().Msg("Manual alert cleared")
	s.notify(ctx, "Alert cleared", "Your responders can see you are safe.")
	return p, nil
}

// UpdateProfile changes the user's display fields.
func (s *Session) UpdateProfile(ctx context.Context, u ProfileUpdate) (models.Person, error) {
	return s.mutateSelf(ctx, func(p models.Person) (models.Person, error) {
		if u.Name != nil {
			p.Name = *u.Name
		}
		if u.PhoneNumber != nil {
			p.PhoneNumber = *u.PhoneNumber
		}
		if u.Note != nil {
			p.Note = *u.Note
		}
		return p, nil
	})
}

// SetPreferences changes the reminder settings and reschedules reminders.
func (s *Session) SetPreferences(ctx context.Context, prefs Preferences) (models.Person, error) {
	p, err := s.mutateSelf(ctx, func(p models.Person) (models.Person, error) {
		p.NotificationsEnabled = prefs.Enabled
		p.Notify30MinBefore = prefs.Notify30MinBefore
		p.Notify2HoursBefore = prefs.Notify2HoursBefore
		return p, nil
	})
	if err != nil {
		return p, err
	}

	s.rescheduleReminders(ctx)
	return p, nil
}

func (s *Session) mutateSelf(ctx context.Context, mutate func(models.Person) (models.Person, error)) (models.Person, error) {
	userID, err := s.actor(ctx)
	if err != nil {
		return s.self, err
	}

	return Optimistic(ctx, Mutation[models.Person]{
		Load:   func() models.Person { return s.self },
		Store:  func(p models.Person) { s.self = p },
		Mutate: mutate,
		Commit: func(ctx context.Context, before, after models.Person) error {
			fields := checkin.Diff(before, after)
			if len(fields) == 0 {
				return nil
			}
			return s.deps.Sync.Update(ctx, userID, userID, fields)
		},
		Reload: func(ctx context.Context) (models.Person, error) {
			return s.deps.Sync.GetRecord(ctx, userID, userID)
		},
	})
}

// rescheduleReminders replaces the user's pending reminders with ones for the
// current expiration. Reminders whose fire time has passed are skipped.
func (s *Session) rescheduleReminders(ctx context.Context) {
	n := s.deps.Notifier
	if n == nil {
		return
	}

	if err := n.CancelReminders(ctx, checkin.ReminderIDs(s.userID)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cancel reminders")
	}

	expiration := checkin.ExpirationOf(s.self)
	now := s.now()
	for _, lead := range checkin.ReminderLeads(s.self) {
		if !expiration.Add(-lead).After(now) {
			continue
		}
		if err := n.ScheduleReminder(ctx, s.userID, expiration, lead); err != nil {
			s.log.Warn().Err(err).Dur("lead", lead).Msg("Failed to schedule reminder")
		}
	}
}

func (s *Session) notify(ctx context.Context, title, body string) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.ShowLocalNotification(ctx, s.userID, title, body); err != nil {
		s.log.Warn().Err(err).Str("title", title).Msg("Failed to show notification")
	}
}
