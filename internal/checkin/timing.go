// Package checkin holds the check-in expiration rules, the status classifier
// and the pure operations that move a person record between states.
package checkin

import (
	"fmt"
	"time"

	"lifesignal-backend/internal/models"
)

// ExpirationOf returns the moment p's check-in window closes.
func ExpirationOf(p models.Person) time.Time {
	return p.LastCheckedIn.Add(p.CheckInInterval)
}

// Remaining returns how long p has left before expiring, never negative.
func Remaining(p models.Person, now time.Time) time.Duration {
	d := ExpirationOf(p).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsExpired reports whether now is past p's expiration.
func IsExpired(p models.Person, now time.Time) bool {
	return now.After(ExpirationOf(p))
}

// FormatRemaining renders d the way notification bodies show it, e.g. "2h 15m".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "less than a minute"
	}
}
