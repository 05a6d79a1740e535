package services

import (
	"context"
	"fmt"
	"time"

	"lifesignal-backend/internal/models"
	"lifesignal-backend/internal/session"

	"github.com/rs/zerolog/log"
)

// PersonStore is the persistence of users' own records
type PersonStore interface {
	GetPerson(ctx context.Context, id string) (models.Person, error)
	UpdateFields(ctx context.Context, id string, fields models.Fields) error
	ContactOwners(ctx context.Context, userID string) ([]string, error)
}

// RelationshipStore is the persistence of relationships
type RelationshipStore interface {
	CreatePair(ctx context.Context, ownerID, contactID string, isResponder, isDependent bool) error
	DeletePair(ctx context.Context, ownerID, contactID string) error
	Get(ctx context.Context, ownerID, contactID string) (models.Person, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Person, error)
	UpdateFields(ctx context.Context, ownerID, contactID string, fields models.Fields) error
}

// Messenger sends an immediate notification to a user
type Messenger interface {
	ShowLocalNotification(ctx context.Context, userID, title, body string) error
}

// SyncService is the server-side source of truth for sessions. Every committed
// write is re-read and published to the hub for each user who can see it.
type SyncService struct {
	people    PersonStore
	contacts  RelationshipStore
	hub       *Hub
	messenger Messenger
}

// NewSyncService creates a new sync service. messenger may be nil.
func NewSyncService(people PersonStore, contacts RelationshipStore, hub *Hub, messenger Messenger) *SyncService {
	return &SyncService{
		people:    people,
		contacts:  contacts,
		hub:       hub,
		messenger: messenger,
	}
}

// GetRecord returns id as seen by selfID
func (s *SyncService) GetRecord(ctx context.Context, selfID, id string) (models.Person, error) {
	if id == selfID {
		return s.people.GetPerson(ctx, selfID)
	}
	return s.contacts.Get(ctx, selfID, id)
}

// ListContacts returns every contact of selfID
func (s *SyncService) ListContacts(ctx context.Context, selfID string) ([]models.Person, error) {
	return s.contacts.ListByOwner(ctx, selfID)
}

// Subscribe opens a live stream for id as seen by selfID. Single-record
// streams start with the current snapshot.
func (s *SyncService) Subscribe(ctx context.Context, selfID, id string) (session.Subscription, error) {
	sub := s.hub.Subscribe(selfID, id)
	if id == session.AllContacts {
		return sub, nil
	}

	rec, err := s.GetRecord(ctx, selfID, id)
	if err != nil {
		sub.Cancel()
		return nil, fmt.Errorf("failed to load initial snapshot: %w", err)
	}
	sub.Prime(session.Change{Record: rec})
	return sub, nil
}

// Update writes fields to id as seen by selfID. Writes to selfID change the
// user's own record; writes to a contact change the relationship and its
// mirror.
func (s *SyncService) Update(ctx context.Context, selfID, id string, fields models.Fields) error {
	if id == selfID {
		if err := s.people.UpdateFields(ctx, selfID, fields); err != nil {
			return err
		}
		s.publishPerson(ctx, selfID)
		if active, ok := fields[models.FieldManualAlertActive].(bool); ok && active {
			s.alertResponders(ctx, selfID)
		}
		return nil
	}

	if err := s.contacts.UpdateFields(ctx, selfID, id, fields); err != nil {
		return err
	}
	s.publishRelationship(ctx, selfID, id)
	if ping, ok := fields[models.FieldOutgoingPing].(*time.Time); ok && ping != nil {
		s.notifyPinged(ctx, selfID, id)
	}
	return nil
}

// CreateRelationship links selfID and otherID. On ErrAlreadyExists the
// contact id is still returned.
func (s *SyncService) CreateRelationship(ctx context.Context, selfID, otherID string, isResponder, isDependent bool) (string, error) {
	if err := s.contacts.CreatePair(ctx, selfID, otherID, isResponder, isDependent); err != nil {
		return otherID, err
	}
	s.publishRelationship(ctx, selfID, otherID)

	log.Info().
		Str("user_id", selfID).
		Str("contact_id", otherID).
		Bool("is_responder", isResponder).
		Bool("is_dependent", isDependent).
		Msg("Relationship created")
	return otherID, nil
}

// DeleteRelationship removes the relationship in both directions
func (s *SyncService) DeleteRelationship(ctx context.Context, selfID, otherID string) error {
	if err := s.contacts.DeletePair(ctx, selfID, otherID); err != nil {
		return err
	}
	s.hub.Publish(selfID, session.Change{Record: models.Person{ID: otherID}, Removed: true})
	s.hub.Publish(otherID, session.Change{Record: models.Person{ID: selfID}, Removed: true})

	log.Info().Str("user_id", selfID).Str("contact_id", otherID).Msg("Relationship deleted")
	return nil
}

// publishPerson sends userID's fresh record to themselves and to everyone who
// has them as a contact.
func (s *SyncService) publishPerson(ctx context.Context, userID string) {
	self, err := s.people.GetPerson(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to reload record for publish")
		return
	}
	s.hub.Publish(userID, session.Change{Record: self})

	owners, err := s.people.ContactOwners(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load contact owners")
		return
	}
	for _, owner := range owners {
		rec, err := s.contacts.Get(ctx, owner, userID)
		if err != nil {
			log.Warn().Err(err).Str("owner_id", owner).Str("user_id", userID).Msg("Failed to reload contact for publish")
			continue
		}
		s.hub.Publish(owner, session.Change{Record: rec})
	}
}

// publishRelationship sends both directions of a relationship to their owners
func (s *SyncService) publishRelationship(ctx context.Context, a, b string) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		rec, err := s.contacts.Get(ctx, pair[0], pair[1])
		if err != nil {
			log.Warn().Err(err).Str("owner_id", pair[0]).Str("contact_id", pair[1]).Msg("Failed to reload contact for publish")
			continue
		}
		s.hub.Publish(pair[0], session.Change{Record: rec})
	}
}

// alertResponders notifies everyone for whom userID is a dependent
func (s *SyncService) alertResponders(ctx context.Context, userID string) {
	if s.messenger == nil {
		return
	}
	owners, err := s.people.ContactOwners(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load responders")
		return
	}
	for _, owner := range owners {
		rec, err := s.contacts.Get(ctx, owner, userID)
		if err != nil || !rec.IsDependent {
			continue
		}
		log.Debug().Str("owner_id", owner).Bool("online", s.hub.Online(owner)).Msg("Alerting responder")
		body := fmt.Sprintf("%s triggered an alert and may need help.", displayName(rec))
		if err := s.messenger.ShowLocalNotification(ctx, owner, "Alert", body); err != nil {
			log.Warn().Err(err).Str("owner_id", owner).Msg("Failed to notify responder")
		}
	}
}

// notifyPinged tells the dependent that selfID is checking on them
func (s *SyncService) notifyPinged(ctx context.Context, selfID, dependentID string) {
	if s.messenger == nil {
		return
	}
	rec, err := s.contacts.Get(ctx, dependentID, selfID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", dependentID).Msg("Failed to load responder for ping")
		return
	}
	body := fmt.Sprintf("%s is checking on you. Tap to respond.", displayName(rec))
	if err := s.messenger.ShowLocalNotification(ctx, dependentID, "Ping", body); err != nil {
		log.Warn().Err(err).Str("user_id", dependentID).Msg("Failed to notify pinged dependent")
	}
}

func displayName(p models.Person) string {
	if p.Name != "" {
		return p.Name
	}
	return "A contact"
}
