package session

import (
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"
)

// Entry is a record annotated with its status at the time the view was built.
type Entry struct {
	models.Person
	Status                 checkin.Status `json:"status"`
	CheckInIntervalSeconds int64          `json:"check_in_interval_seconds"`
	ExpiresAt              time.Time      `json:"expires_at"`
	RemainingSeconds       int64          `json:"remaining_seconds"`
	Remaining              string         `json:"remaining"`
}

// View is the display model of a session.
type View struct {
	Self       Entry   `json:"self"`
	Responders []Entry `json:"responders"`
	Dependents []Entry `json:"dependents"`
	PingCount  int     `json:"pending_pings"`
}

// NewEntry annotates p as of now.
func NewEntry(p models.Person, now time.Time) Entry {
	remaining := checkin.Remaining(p, now)
	return Entry{
		Person:                 p,
		Status:                 checkin.Classify(p, now),
		CheckInIntervalSeconds: int64(p.CheckInInterval / time.Second),
		ExpiresAt:              checkin.ExpirationOf(p),
		RemainingSeconds:       int64(remaining / time.Second),
		Remaining:              checkin.FormatRemaining(remaining),
	}
}

// View builds the display model with responders and dependents sorted by
// urgency.
func (s *Session) View(now time.Time) View {
	return View{
		Self:       NewEntry(s.self, now),
		Responders: entries(s.store.Responders(), now),
		Dependents: entries(s.store.Dependents(), now),
		PingCount:  len(s.store.WithIncomingPings()),
	}
}

func entries(records []models.Person, now time.Time) []Entry {
	checkin.SortForDisplay(records, now)
	out := make([]Entry, 0, len(records))
	for _, p := range records {
		out = append(out, NewEntry(p, now))
	}
	return out
}
