package services

import (
	"strings"
	"sync"

	"lifesignal-backend/internal/session"

	"github.com/rs/zerolog/log"
)

const subscriptionBuffer = 16

// Hub fans out record snapshots to live subscriptions. Subscriptions are keyed
// by the owner who sees the record and the record id, or session.AllContacts.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*HubSubscription]struct{}
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*HubSubscription]struct{}),
	}
}

// HubSubscription is a single listener registered on the hub
type HubSubscription struct {
	hub  *Hub
	key  string
	ch   chan session.Change
	once sync.Once
}

// Changes returns the snapshot stream. It is closed by Cancel.
func (s *HubSubscription) Changes() <-chan session.Change {
	return s.ch
}

// Cancel unregisters the subscription and closes its stream. Further calls
// are no-ops.
func (s *HubSubscription) Cancel() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		if set, ok := s.hub.subs[s.key]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.key)
			}
		}
		close(s.ch)
	})
}

// Subscribe registers a listener for recordID as seen by ownerID
func (h *Hub) Subscribe(ownerID, recordID string) *HubSubscription {
	sub := &HubSubscription{
		hub: h,
		key: hubKey(ownerID, recordID),
		ch:  make(chan session.Change, subscriptionBuffer),
	}

	h.mu.Lock()
	set, ok := h.subs[sub.key]
	if !ok {
		set = make(map[*HubSubscription]struct{})
		h.subs[sub.key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Publish delivers c to ownerID's listeners of that record and of the whole
// collection. Slow listeners lose their oldest pending snapshot.
func (h *Hub) Publish(ownerID string, c session.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range []string{hubKey(ownerID, c.Record.ID), hubKey(ownerID, session.AllContacts)} {
		for sub := range h.subs[key] {
			sub.deliver(c)
		}
	}
}

// Prime delivers an initial snapshot to this subscription only. It does
// nothing once the subscription is cancelled.
func (s *HubSubscription) Prime(c session.Change) {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()

	if _, ok := s.hub.subs[s.key][s]; !ok {
		return
	}
	s.deliver(c)
}

// deliver must be called with the hub lock held so the channel cannot be
// closed concurrently.
func (s *HubSubscription) deliver(c session.Change) {
	select {
	case s.ch <- c:
		return
	default:
	}

	select {
	case <-s.ch:
		log.Warn().Str("subscription", s.key).Msg("Subscriber is slow, dropping oldest snapshot")
	default:
	}

	select {
	case s.ch <- c:
	default:
	}
}

// Online reports whether ownerID has any live subscription
func (h *Hub) Online(ownerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	prefix := ownerID + "/"
	for key := range h.subs {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Subscribers returns the number of listeners for recordID as seen by ownerID
func (h *Hub) Subscribers(ownerID, recordID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[hubKey(ownerID, recordID)])
}

func hubKey(ownerID, recordID string) string {
	return ownerID + "/" + recordID
}
