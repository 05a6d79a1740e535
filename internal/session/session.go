// Package session owns one signed-in user's view of their own record and their
// contacts. A Session is driven by a single goroutine; snapshots from
// subscriptions arrive on Changes and are absorbed with ApplyChange.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/contacts"
	"lifesignal-backend/internal/models"

	"github.com/rs/zerolog"
)

const changeBuffer = 64

// Deps are the collaborators a session talks to.
type Deps struct {
	Auth     Authenticator
	Sync     DocumentSync
	Notifier Notifier
	Lookup   IdentifierLookup
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Session is not safe for concurrent use.
type Session struct {
	deps   Deps
	log    zerolog.Logger
	userID string

	self  models.Person
	store *contacts.Store

	subs    map[string]Subscription
	changes chan Change
	done    chan struct{}
	once    sync.Once
}

// Open resolves the acting user and loads their record and contacts.
func Open(ctx context.Context, deps Deps) (*Session, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	userID, err := resolveUser(ctx, deps.Auth)
	if err != nil {
		return nil, err
	}

	s := &Session{
		deps:    deps,
		log:     deps.Logger.With().Str("user_id", userID).Logger(),
		userID:  userID,
		store:   contacts.NewStore(),
		subs:    make(map[string]Subscription),
		changes: make(chan Change, changeBuffer),
		done:    make(chan struct{}),
	}

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	s.log.Debug().Int("contacts", s.store.Len()).Msg("Session opened")
	return s, nil
}

// UserID returns the id of the user owning the session.
func (s *Session) UserID() string {
	return s.userID
}

// Self returns the user's own record.
func (s *Session) Self() models.Person {
	return s.self
}

// Contacts returns every contact in insertion order.
func (s *Session) Contacts() []models.Person {
	return s.store.All()
}

// Contact returns one contact.
func (s *Session) Contact(id string) (models.Person, bool) {
	return s.store.Get(id)
}

// Refresh replaces all local state with authoritative records.
func (s *Session) Refresh(ctx context.Context) error {
	self, err := s.deps.Sync.GetRecord(ctx, s.userID, s.userID)
	if err != nil {
		return fmt.Errorf("failed to load own record: %w", checkin.AsSyncFailure(err))
	}
	list, err := s.deps.Sync.ListContacts(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", checkin.AsSyncFailure(err))
	}

	s.self = self
	s.store.Reset(list)
	return nil
}

// ApplyChange absorbs an authoritative snapshot by replacing the local record.
// It reports whether anything visible changed, so an echo of an optimistic
// update returns false. A snapshot for a contact the session does not know
// is confirmed with the server before it is added, so a snapshot that raced
// a removal cannot bring the contact back.
func (s *Session) ApplyChange(ctx context.Context, c Change) bool {
	rec := c.Record

	if rec.ID == s.userID {
		if c.Removed {
			return false
		}
		changed := len(checkin.Diff(s.self, rec)) > 0
		s.self = rec
		return changed
	}

	if c.Removed {
		return s.store.Remove(rec.ID) == nil
	}

	if current, ok := s.store.Get(rec.ID); ok {
		changed := len(checkin.Diff(current, rec)) > 0
		_ = s.store.Replace(rec)
		return changed
	}

	confirmed, err := s.deps.Sync.GetRecord(ctx, s.userID, rec.ID)
	if err != nil {
		s.log.Debug().Err(err).Str("record_id", rec.ID).Msg("Dropping snapshot of unconfirmed contact")
		return false
	}
	s.store.Upsert(confirmed)
	return true
}

// Changes delivers snapshots from every active subscription. It is never
// closed; stop reading once Close has been called.
func (s *Session) Changes() <-chan Change {
	return s.changes
}

// Watch subscribes to one record, or to the whole collection with
// AllContacts. Watching an id that is already watched is a no-op.
func (s *Session) Watch(ctx context.Context, id string) error {
	if _, ok := s.subs[id]; ok {
		return nil
	}

	sub, err := s.deps.Sync.Subscribe(ctx, s.userID, id)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", id, checkin.AsSyncFailure(err))
	}
	s.subs[id] = sub

	go s.forward(sub)

	s.log.Debug().Str("record_id", id).Msg("Watching record")
	return nil
}

// WatchAll subscribes to the user's own record and the contact collection.
func (s *Session) WatchAll(ctx context.Context) error {
	if err := s.Watch(ctx, s.userID); err != nil {
		return err
	}
	return s.Watch(ctx, AllContacts)
}

// Unwatch cancels the subscription for id. A later Watch opens a new one.
func (s *Session) Unwatch(id string) {
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	sub.Cancel()
}

// Watching reports whether id has an active subscription.
func (s *Session) Watching(id string) bool {
	_, ok := s.subs[id]
	return ok
}

// Close cancels every subscription. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		for id, sub := range s.subs {
			sub.Cancel()
			delete(s.subs, id)
		}
		close(s.done)
		s.log.Debug().Msg("Session closed")
	})
}

func (s *Session) forward(sub Subscription) {
	for c := range sub.Changes() {
		select {
		case s.changes <- c:
		case <-s.done:
			return
		}
	}
}

func (s *Session) actor(ctx context.Context) (string, error) {
	id, err := resolveUser(ctx, s.deps.Auth)
	if err != nil {
		return "", err
	}
	if id != s.userID {
		return "", fmt.Errorf("%w: session belongs to another user", checkin.ErrNotAuthenticated)
	}
	return id, nil
}

func resolveUser(ctx context.Context, auth Authenticator) (string, error) {
	if auth == nil {
		return "", checkin.ErrNotAuthenticated
	}
	id, err := auth.CurrentUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", checkin.ErrNotAuthenticated, err)
	}
	if id == "" {
		return "", checkin.ErrNotAuthenticated
	}
	return id, nil
}

func (s *Session) now() time.Time {
	return s.deps.Now()
}
