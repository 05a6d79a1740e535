package session

import (
	"context"
	"errors"
	"fmt"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"
)

// AddResult is the outcome of AddContact. Existed is set when the
// relationship was already in place, which is not an error.
type AddResult struct {
	Contact models.Person `json:"contact"`
	Existed bool          `json:"existed"`
}

// AddContact creates a relationship with the user behind a scanned QR code.
func (s *Session) AddContact(ctx context.Context, code string, isResponder, isDependent bool) (AddResult, error) {
	userID, err := s.actor(ctx)
	if err != nil {
		return AddResult{}, err
	}
	if !isResponder && !isDependent {
		return AddResult{}, checkin.ErrInvalidRoleState
	}
	if s.deps.Lookup == nil {
		return AddResult{}, checkin.ErrInvalidIdentifier
	}

	otherID, err := s.deps.Lookup.ResolveCode(ctx, code)
	if err != nil {
		return AddResult{}, checkin.AsSyncFailure(err)
	}
	if otherID == userID {
		return AddResult{}, checkin.ErrSelfRelationship
	}
	if existing, ok := s.store.Get(otherID); ok {
		return AddResult{Contact: existing, Existed: true}, nil
	}

	contactID, err := s.deps.Sync.CreateRelationship(ctx, userID, otherID, isResponder, isDependent)
	existed := errors.Is(err, checkin.ErrAlreadyExists)
	if err != nil && !existed {
		return AddResult{}, fmt.Errorf("failed to create relationship: %w", checkin.AsSyncFailure(err))
	}
	if contactID == "" {
		contactID = otherID
	}

	rec, err := s.deps.Sync.GetRecord(ctx, userID, contactID)
	if err != nil {
		return AddResult{}, fmt.Errorf("failed to load contact: %w", checkin.AsSyncFailure(err))
	}
	s.store.Upsert(rec)

	s.log.Info().Str("contact_id", contactID).Bool("existed", existed).Msg("Contact added")
	return AddResult{Contact: rec, Existed: existed}, nil
}

// RemoveContact deletes the relationship in both directions.
func (s *Session) RemoveContact(ctx context.Context, id string) error {
	userID, err := s.actor(ctx)
	if err != nil {
		return err
	}
	if _, ok := s.store.Get(id); !ok {
		return fmt.Errorf("%w: contact %s", checkin.ErrNotFound, id)
	}

	_, err = Optimistic(ctx, Mutation[[]models.Person]{
		Load:  s.store.All,
		Store: s.store.Reset,
		Mutate: func(records []models.Person) ([]models.Person, error) {
			out := make([]models.Person, 0, len(records))
			for _, p := range records {
				if p.ID != id {
					out = append(out, p)
				}
			}
			return out, nil
		},
		Commit: func(ctx context.Context, _, _ []models.Person) error {
			return s.deps.Sync.DeleteRelationship(ctx, userID, id)
		},
		Reload: func(ctx context.Context) ([]models.Person, error) {
			return s.deps.Sync.ListContacts(ctx, userID)
		},
	})
	if err != nil {
		return err
	}

	s.Unwatch(id)
	s.log.Info().Str("contact_id", id).Msg("Contact removed")
	return nil
}

// UpdateRoles changes whether a contact is a responder, a dependent, or both.
func (s *Session) UpdateRoles(ctx context.Context, id string, isResponder, isDependent bool) (models.Person, error) {
	return s.mutateContact(ctx, id, func(p models.Person) (models.Person, error) {
		return checkin.SetRoles(p, isResponder, isDependent)
	})
}

// SendPing asks a dependent to confirm they are fine.
func (s *Session) SendPing(ctx context.Context, id string) (models.Person, error) {
	now := s.now()
	return s.mutateContact(ctx, id, func(p models.Person) (models.Person, error) {
		return checkin.SendPing(p, now)
	})
}

// ClearPing withdraws a ping sent to a dependent.
func (s *Session) ClearPing(ctx context.Context, id string) (models.Person, error) {
	return s.mutateContact(ctx, id, checkin.ClearPing)
}

// RespondToPing answers a ping from a responder.
func (s *Session) RespondToPing(ctx context.Context, id string) (models.Person, error) {
	return s.mutateContact(ctx, id, checkin.RespondToPing)
}

// RespondToAllPings answers every pending ping. Local state either shows all
// pings answered or, if any commit fails, is reloaded from the server.
func (s *Session) RespondToAllPings(ctx context.Context) ([]models.Person, error) {
	userID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	return Optimistic(ctx, Mutation[[]models.Person]{
		Load:   s.store.All,
		Store:  s.store.Reset,
		Mutate: checkin.RespondToAllPings,
		Commit: func(ctx context.Context, before, after []models.Person) error {
			var errs []error
			for i := range after {
				fields := checkin.Diff(before[i], after[i])
				if len(fields) == 0 {
					continue
				}
				if err := s.deps.Sync.Update(ctx, userID, after[i].ID, fields); err != nil {
					errs = append(errs, fmt.Errorf("failed to answer %s: %w", after[i].ID, err))
				}
			}
			return errors.Join(errs...)
		},
		Reload: func(ctx context.Context) ([]models.Person, error) {
			return s.deps.Sync.ListContacts(ctx, userID)
		},
	})
}

func (s *Session) mutateContact(ctx context.Context, id string, mutate func(models.Person) (models.Person, error)) (models.Person, error) {
	userID, err := s.actor(ctx)
	if err != nil {
		return models.Person{}, err
	}
	if _, ok := s.store.Get(id); !ok {
		return models.Person{}, fmt.Errorf("%w: contact %s", checkin.ErrNotFound, id)
	}

	return Optimistic(ctx, Mutation[models.Person]{
		Load: func() models.Person {
			p, _ := s.store.Get(id)
			return p
		},
		Store:  func(p models.Person) { s.store.Upsert(p) },
		Mutate: mutate,
		Commit: func(ctx context.Context, before, after models.Person) error {
			fields := checkin.Diff(before, after)
			if len(fields) == 0 {
				return nil
			}
			return s.deps.Sync.Update(ctx, userID, id, fields)
		},
		Reload: func(ctx context.Context) (models.Person, error) {
			return s.deps.Sync.GetRecord(ctx, userID, id)
		},
	})
}
