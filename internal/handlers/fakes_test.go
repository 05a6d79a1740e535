package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"lifesignal-backend/internal/checkin"
	"lifesignal-backend/internal/models"
	"lifesignal-backend/internal/services"
	"lifesignal-backend/internal/session"
)

type tokenTable map[string]string

func (t tokenTable) VerifyToken(_ context.Context, token string) (string, error) {
	id, ok := t[token]
	if !ok {
		return "", errors.New("bad token")
	}
	return id, nil
}

type codeTable map[string]string

func (c codeTable) ResolveCode(_ context.Context, code string) (string, error) {
	id, ok := c[code]
	if !ok {
		return "", checkin.ErrInvalidIdentifier
	}
	return id, nil
}

type fakeSubscription struct {
	ch   chan session.Change
	once sync.Once
}

func (f *fakeSubscription) Changes() <-chan session.Change { return f.ch }

func (f *fakeSubscription) Cancel() { f.once.Do(func() { close(f.ch) }) }

// memSync is an in-memory DocumentSync. Contacts are stored as seen by their
// owner; relationship writes are mirrored onto the reverse row.
type memSync struct {
	mu        sync.Mutex
	people    map[string]models.Person
	rels      map[[2]string]models.Person
	subs      map[string]*fakeSubscription
	updateErr error
}

func newMemSync(people ...models.Person) *memSync {
	m := &memSync{
		people: map[string]models.Person{},
		rels:   map[[2]string]models.Person{},
		subs:   map[string]*fakeSubscription{},
	}
	for _, p := range people {
		m.people[p.ID] = p
	}
	return m
}

func (m *memSync) link(owner, contact string, isResponder, isDependent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkLocked(owner, contact, isResponder, isDependent)
}

func (m *memSync) linkLocked(owner, contact string, isResponder, isDependent bool) {
	a := m.people[contact]
	a.IsResponder, a.IsDependent = isResponder, isDependent
	m.rels[[2]string{owner, contact}] = a

	b := m.people[owner]
	b.IsResponder, b.IsDependent = isDependent, isResponder
	m.rels[[2]string{contact, owner}] = b
}

func (m *memSync) GetRecord(_ context.Context, selfID, id string) (models.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == selfID {
		p, ok := m.people[id]
		if !ok {
			return models.Person{}, checkin.ErrNotFound
		}
		return p, nil
	}
	p, ok := m.rels[[2]string{selfID, id}]
	if !ok {
		return models.Person{}, checkin.ErrNotFound
	}
	return p, nil
}

func (m *memSync) ListContacts(_ context.Context, selfID string) ([]models.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Person
	for key, p := range m.rels {
		if key[0] == selfID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memSync) Subscribe(_ context.Context, selfID, id string) (session.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &fakeSubscription{ch: make(chan session.Change, 8)}
	m.subs[selfID+"/"+id] = sub
	return sub, nil
}

func (m *memSync) person(id string) models.Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.people[id]
}

func (m *memSync) push(key string, c session.Change) {
	m.mu.Lock()
	sub := m.subs[key]
	m.mu.Unlock()
	sub.ch <- c
}

func (m *memSync) Update(_ context.Context, selfID, id string, fields models.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if id == selfID {
		m.people[id] = apply(m.people[id], fields)
		return nil
	}
	key := [2]string{selfID, id}
	if _, ok := m.rels[key]; !ok {
		return checkin.ErrNotFound
	}
	m.rels[key] = apply(m.rels[key], fields)
	reverse := [2]string{id, selfID}
	m.rels[reverse] = apply(m.rels[reverse], mirror(fields))
	return nil
}

func (m *memSync) CreateRelationship(_ context.Context, selfID, otherID string, isResponder, isDependent bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rels[[2]string{selfID, otherID}]; ok {
		return otherID, checkin.ErrAlreadyExists
	}
	m.linkLocked(selfID, otherID, isResponder, isDependent)
	return otherID, nil
}

func (m *memSync) DeleteRelationship(_ context.Context, selfID, otherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rels[[2]string{selfID, otherID}]; !ok {
		return checkin.ErrNotFound
	}
	delete(m.rels, [2]string{selfID, otherID})
	delete(m.rels, [2]string{otherID, selfID})
	return nil
}

func mirror(fields models.Fields) models.Fields {
	swap := map[string]string{
		models.FieldIsResponder:  models.FieldIsDependent,
		models.FieldIsDependent:  models.FieldIsResponder,
		models.FieldIncomingPing: models.FieldOutgoingPing,
		models.FieldOutgoingPing: models.FieldIncomingPing,
	}
	out := models.Fields{}
	for name, v := range fields {
		out[swap[name]] = v
	}
	return out
}

func apply(p models.Person, fields models.Fields) models.Person {
	for name, v := range fields {
		switch name {
		case models.FieldName:
			p.Name = v.(string)
		case models.FieldPhoneNumber:
			p.PhoneNumber = v.(string)
		case models.FieldNote:
			p.Note = v.(string)
		case models.FieldLastCheckedIn:
			p.LastCheckedIn = v.(time.Time)
		case models.FieldCheckInInterval:
			p.CheckInInterval = v.(time.Duration)
		case models.FieldManualAlertActive:
			p.ManualAlertActive = v.(bool)
		case models.FieldManualAlertTimestamp:
			p.ManualAlertTimestamp = v.(*time.Time)
		case models.FieldNotify30MinBefore:
			p.Notify30MinBefore = v.(bool)
		case models.FieldNotify2HoursBefore:
			p.Notify2HoursBefore = v.(bool)
		case models.FieldNotificationsEnabled:
			p.NotificationsEnabled = v.(bool)
		case models.FieldIsResponder:
			p.IsResponder = v.(bool)
		case models.FieldIsDependent:
			p.IsDependent = v.(bool)
		case models.FieldIncomingPing:
			p.IncomingPingTimestamp = v.(*time.Time)
			p.HasIncomingPing = p.IncomingPingTimestamp != nil
		case models.FieldOutgoingPing:
			p.OutgoingPingTimestamp = v.(*time.Time)
			p.HasOutgoingPing = p.OutgoingPingTimestamp != nil
		}
	}
	return p
}

type fakeAccounts struct {
	created []string
	pushed  map[string]string
	codeErr error
}

func (f *fakeAccounts) CreateUser(_ context.Context, id string, req services.CreateUserRequest) (*models.User, error) {
	if id == "" {
		id = "new-user"
	}
	f.created = append(f.created, req.Name)
	return &models.User{ID: id, Code: "ABC123", Token: "tok-" + id}, nil
}

func (f *fakeAccounts) GetUser(_ context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID, Code: "ABC123"}, nil
}

func (f *fakeAccounts) RegenerateCode(_ context.Context, userID string) (string, error) {
	if f.codeErr != nil {
		return "", f.codeErr
	}
	return "XYZ789", nil
}

func (f *fakeAccounts) UpdatePushToken(_ context.Context, userID, token string) error {
	if f.pushed == nil {
		f.pushed = map[string]string{}
	}
	f.pushed[userID] = token
	return nil
}

type fakePresigner struct{}

func (fakePresigner) PresignUpload(_ context.Context, userID, contentType string) (*services.AvatarUploadResponse, error) {
	if contentType != "" && contentType != "image/jpeg" && contentType != "image/png" {
		return nil, services.ErrUnsupportedContentType
	}
	return &services.AvatarUploadResponse{UploadURL: "https://s3.test/upload", Key: "avatars/" + userID + "/a.jpg", ExpiresIn: 300}, nil
}
