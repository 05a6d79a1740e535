package services

import (
	"context"
	"time"

	"lifesignal-backend/internal/session"

	"github.com/rs/zerolog/log"
)

// SessionFactory opens sessions wired to the server-side collaborators
type SessionFactory struct {
	sync     session.DocumentSync
	notifier session.Notifier
	lookup   session.IdentifierLookup
	now      func() time.Time
}

// NewSessionFactory creates a new session factory. notifier may be nil.
func NewSessionFactory(sync session.DocumentSync, notifier session.Notifier, lookup session.IdentifierLookup) *SessionFactory {
	return &SessionFactory{
		sync:     sync,
		notifier: notifier,
		lookup:   lookup,
		now:      clock,
	}
}

// clock reads the wall clock at the precision Postgres stores timestamps with,
// so a committed value comes back unchanged in its own snapshot.
func clock() time.Time {
	return time.Now().Truncate(time.Microsecond)
}

// Open starts a session for the user resolved by auth
func (f *SessionFactory) Open(ctx context.Context, auth session.Authenticator) (*session.Session, error) {
	return session.Open(ctx, session.Deps{
		Auth:     auth,
		Sync:     f.sync,
		Notifier: f.notifier,
		Lookup:   f.lookup,
		Now:      f.now,
		Logger:   log.Logger,
	})
}
