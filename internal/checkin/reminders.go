package checkin

import (
	"fmt"
	"time"

	"lifesignal-backend/internal/models"
)

// Lead times at which a check-in reminder fires before expiration.
const (
	Lead30Minutes = 30 * time.Minute
	Lead2Hours    = 2 * time.Hour
)

// AllReminderLeads lists every lead time a reminder can be scheduled with.
var AllReminderLeads = []time.Duration{Lead30Minutes, Lead2Hours}

// ReminderLeads returns the lead times p has opted into. The two reminders are
// independent; both are suppressed when notifications are disabled.
func ReminderLeads(p models.Person) []time.Duration {
	if !p.NotificationsEnabled {
		return nil
	}
	var leads []time.Duration
	if p.Notify30MinBefore {
		leads = append(leads, Lead30Minutes)
	}
	if p.Notify2HoursBefore {
		leads = append(leads, Lead2Hours)
	}
	return leads
}

// ReminderID is the stable identifier of userID's reminder for lead, so a new
// schedule overwrites the old one.
func ReminderID(userID string, lead time.Duration) string {
	if lead%time.Hour == 0 {
		return fmt.Sprintf("%s:%dh", userID, int(lead/time.Hour))
	}
	return fmt.Sprintf("%s:%dm", userID, int(lead/time.Minute))
}

// ReminderIDs returns the identifiers of every reminder userID may have.
func ReminderIDs(userID string) []string {
	ids := make([]string, 0, len(AllReminderLeads))
	for _, lead := range AllReminderLeads {
		ids = append(ids, ReminderID(userID, lead))
	}
	return ids
}
