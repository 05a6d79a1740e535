package session

import (
	"context"
	"time"

	"lifesignal-backend/internal/models"
)

// AllContacts is the subscription key for the signed-in user's whole contact
// collection. Its stream also carries contacts added or removed elsewhere.
const AllContacts = "*"

// Authenticator resolves the acting user.
type Authenticator interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Change is one authoritative snapshot delivered by a subscription.
type Change struct {
	Record  models.Person `json:"record"`
	Removed bool          `json:"removed,omitempty"`
}

// Subscription is a live stream of snapshots. Cancel releases the underlying
// listener exactly once and closes the channel returned by Changes.
type Subscription interface {
	Changes() <-chan Change
	Cancel()
}

// DocumentSync is the remote source of truth. Records are always read as seen
// by selfID; GetRecord(selfID, selfID) returns the user's own record.
type DocumentSync interface {
	GetRecord(ctx context.Context, selfID, id string) (models.Person, error)
	ListContacts(ctx context.Context, selfID string) ([]models.Person, error)
	Subscribe(ctx context.Context, selfID, id string) (Subscription, error)
	Update(ctx context.Context, selfID, id string, fields models.Fields) error
	CreateRelationship(ctx context.Context, selfID, otherID string, isResponder, isDependent bool) (string, error)
	DeleteRelationship(ctx context.Context, selfID, otherID string) error
}

// Notifier delivers reminders and confirmations. Failures are logged by the
// caller and never fail the operation that triggered them.
type Notifier interface {
	ScheduleReminder(ctx context.Context, userID string, expiration time.Time, lead time.Duration) error
	CancelReminders(ctx context.Context, ids []string) error
	ShowLocalNotification(ctx context.Context, userID, title, body string) error
}

// IdentifierLookup resolves a scanned QR code to a user id.
type IdentifierLookup interface {
	ResolveCode(ctx context.Context, code string) (string, error)
}
