// Package contacts keeps the signed-in user's contacts in display order with
// an id index. Responders and dependents are computed from the same slice.
package contacts

import (
	"fmt"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"
)

// Store is not safe for concurrent use; it is owned by a single session.
type Store struct {
	records []models.Person
	index   map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Add appends a contact. It fails if the id is already present.
func (s *Store) Add(p models.Person) error {
	if _, ok := s.index[p.ID]; ok {
		return fmt.Errorf("%w: %s", checkin.ErrDuplicateContact, p.ID)
	}
	s.records = append(s.records, p)
	s.index[p.ID] = len(s.records) - 1
	return nil
}

// Remove deletes a contact. The slice and index are rebuilt before either is
// swapped in.
func (s *Store) Remove(id string) error {
	pos, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: contact %s", checkin.ErrNotFound, id)
	}

	records := make([]models.Person, 0, len(s.records)-1)
	records = append(records, s.records[:pos]...)
	records = append(records, s.records[pos+1:]...)

	s.records, s.index = records, buildIndex(records)
	return nil
}

// UpdateRoles replaces a contact's role flags. On error the store is unchanged.
func (s *Store) UpdateRoles(id string, isResponder, isDependent bool) (models.Person, error) {
	pos, ok := s.index[id]
	if !ok {
		return models.Person{}, fmt.Errorf("%w: contact %s", checkin.ErrNotFound, id)
	}
	updated, err := checkin.SetRoles(s.records[pos], isResponder, isDependent)
	if err != nil {
		return s.records[pos], err
	}
	s.records[pos] = updated
	return updated, nil
}

// Get returns the contact with id.
func (s *Store) Get(id string) (models.Person, bool) {
	pos, ok := s.index[id]
	if !ok {
		return models.Person{}, false
	}
	return s.records[pos], true
}

// Replace swaps in an authoritative snapshot of an existing contact.
func (s *Store) Replace(p models.Person) error {
	pos, ok := s.index[p.ID]
	if !ok {
		return fmt.Errorf("%w: contact %s", checkin.ErrNotFound, p.ID)
	}
	s.records[pos] = p
	return nil
}

// Upsert replaces the contact if present and appends it otherwise. It reports
// whether the contact is new.
func (s *Store) Upsert(p models.Person) bool {
	if pos, ok := s.index[p.ID]; ok {
		s.records[pos] = p
		return false
	}
	s.records = append(s.records, p)
	s.index[p.ID] = len(s.records) - 1
	return true
}

// Reset replaces every contact. Later duplicates of an id win.
func (s *Store) Reset(records []models.Person) {
	next := make([]models.Person, 0, len(records))
	index := make(map[string]int, len(records))
	for _, p := range records {
		if pos, ok := index[p.ID]; ok {
			next[pos] = p
			continue
		}
		index[p.ID] = len(next)
		next = append(next, p)
	}
	s.records, s.index = next, index
}

// All returns a copy of the contacts in insertion order.
func (s *Store) All() []models.Person {
	out := make([]models.Person, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of contacts.
func (s *Store) Len() int {
	return len(s.records)
}

// IDs returns the contact ids in insertion order.
func (s *Store) IDs() []string {
	ids := make([]string, len(s.records))
	for i, p := range s.records {
		ids[i] = p.ID
	}
	return ids
}

// Responders returns the contacts that watch over the user.
func (s *Store) Responders() []models.Person {
	return s.filter(func(p models.Person) bool { return p.IsResponder })
}

// Dependents returns the contacts the user watches over.
func (s *Store) Dependents() []models.Person {
	return s.filter(func(p models.Person) bool { return p.IsDependent })
}

// WithIncomingPings returns the responders that are waiting for an answer.
func (s *Store) WithIncomingPings() []models.Person {
	return s.filter(func(p models.Person) bool { return p.HasIncomingPing })
}

func (s *Store) filter(keep func(models.Person) bool) []models.Person {
	var out []models.Person
	for _, p := range s.records {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func buildIndex(records []models.Person) map[string]int {
	index := make(map[string]int, len(records))
	for i, p := range records {
		index[p.ID] = i
	}
	return index
}
