package checkin

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"lifesignal-backend/internal/models"
)

// Status is the single display status derived from a person record.
// Lower values are more urgent.
type Status int

const (
	StatusAlerting Status = iota
	StatusNonResponsive
	StatusPingedOutgoing
	StatusPingedIncoming
	StatusNormal
)

var statusNames = map[Status]string{
	StatusAlerting:       "alerting",
	StatusNonResponsive:  "non_responsive",
	StatusPingedOutgoing: "pinged_outgoing",
	StatusPingedIncoming: "pinged_incoming",
	StatusNormal:         "normal",
}

// String returns the wire name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Classify derives p's status at now. The first matching rule wins: manual
// alert, expiration, outgoing ping, incoming ping.
func Classify(p models.Person, now time.Time) Status {
	switch {
	case p.ManualAlertActive:
		return StatusAlerting
	case IsExpired(p, now):
		return StatusNonResponsive
	case p.HasOutgoingPing:
		return StatusPingedOutgoing
	case p.HasIncomingPing:
		return StatusPingedIncoming
	default:
		return StatusNormal
	}
}

// SortForDisplay orders records by status, then by recency of the timestamp
// that put them in that status, then by name.
func SortForDisplay(records []models.Person, now time.Time) {
	slices.SortStableFunc(records, func(a, b models.Person) int {
		sa, sb := Classify(a, now), Classify(b, now)
		if sa != sb {
			return cmp.Compare(sa, sb)
		}
		if c := compareWithinStatus(sa, a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

func compareWithinStatus(s Status, a, b models.Person) int {
	switch s {
	case StatusAlerting:
		return newestFirst(a.ManualAlertTimestamp, b.ManualAlertTimestamp)
	case StatusNonResponsive:
		// most expired first
		return ExpirationOf(a).Compare(ExpirationOf(b))
	case StatusPingedOutgoing:
		return newestFirst(a.OutgoingPingTimestamp, b.OutgoingPingTimestamp)
	case StatusPingedIncoming:
		return newestFirst(a.IncomingPingTimestamp, b.IncomingPingTimestamp)
	default:
		return 0
	}
}

// newestFirst puts later timestamps first and missing timestamps last.
func newestFirst(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return b.Compare(*a)
	}
}
