// Package roster maintains conversation summaries: who the user talks to,
// the latest message per conversation, unread counts and presence. It is
// fed from two directions — REST contact fetches and live socket events —
// and keeps its list sorted by recency.
package roster

import (
	"cmp"
	"slices"
	"strconv"
	"sync"
	"time"

	"dormchat/internal/bus"
	"dormchat/internal/models"
)

// Registry is the contact/presence registry for one user session.
type Registry struct {
	me  int64
	bus *bus.Bus

	mu       sync.RWMutex
	contacts map[int64]*models.Contact
	active   int64 // 0 = no open conversation
}

// NewRegistry creates an empty registry for the given current user.
func NewRegistry(me int64, b *bus.Bus) *Registry {
	return &Registry{
		me:       me,
		bus:      b,
		contacts: make(map[int64]*models.Contact),
	}
}

// Upsert inserts or merges a contact. A non-authoritative merge preserves
// the locally tracked unread count; an authoritative one (fresh REST fetch)
// takes the incoming value.
func (r *Registry) Upsert(c models.Contact, authoritative bool) {
	r.mu.Lock()
	existing, ok := r.contacts[c.ID]
	if !ok {
		cp := c
		r.contacts[c.ID] = &cp
	} else {
		if c.DisplayName != "" {
			existing.DisplayName = c.DisplayName
		}
		if c.AvatarURL != "" {
			existing.AvatarURL = c.AvatarURL
		}
		if !c.LastMessageTime.IsZero() {
			existing.LastMessage = c.LastMessage
			existing.LastMessageTime = c.LastMessageTime
		}
		existing.IsGroup = c.IsGroup
		existing.IsOnline = c.IsOnline
		if !c.LastSeenAt.IsZero() {
			existing.LastSeenAt = c.LastSeenAt
		}
		if authoritative {
			existing.UnreadCount = c.UnreadCount
		}
	}
	r.mu.Unlock()

	r.publish(bus.KindContactUpdated, c.ID)
}

// SyncFromFetch applies a fresh REST contact list. Every entry is
// authoritative, including its unread count.
func (r *Registry) SyncFromFetch(cs []models.Contact) {
	for _, c := range cs {
		r.Upsert(c, true)
	}
}

// OnMessageReceived updates the peer's summary for a live message, inbound
// or outbound. The unread count grows only for inbound messages addressed
// to the current user on a conversation that is not the open one.
func (r *Registry) OnMessageReceived(m models.Message, sender *models.WireSender) {
	peer := m.SenderID
	if peer == r.me {
		peer = m.ReceiverID
	}

	r.mu.Lock()
	c, ok := r.contacts[peer]
	if !ok {
		c = r.synthesize(peer, sender, m.Timestamp)
		r.contacts[peer] = c
	}
	c.LastMessage = m.Content
	c.LastMessageTime = m.Timestamp

	if m.ReceiverID == r.me && m.SenderID != r.me && m.SenderID != r.active {
		c.UnreadCount++
	}
	r.mu.Unlock()

	r.publish(bus.KindContactUpdated, peer)
}

// OnPresenceEvent updates a known contact's online flag and last-seen time.
// Unknown users are ignored: a contact is never synthesized from presence
// alone.
func (r *Registry) OnPresenceEvent(userID int64, isOnline bool, ts time.Time) {
	r.mu.Lock()
	c, ok := r.contacts[userID]
	if ok {
		c.IsOnline = isOnline
		c.LastSeenAt = ts
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.publish(bus.KindPresenceUpdated, userID)
}

// SetActive records which conversation is open and zeroes its unread count.
// Zero closes the open conversation.
func (r *Registry) SetActive(id int64) {
	r.mu.Lock()
	r.active = id
	c, ok := r.contacts[id]
	if ok {
		c.UnreadCount = 0
	}
	r.mu.Unlock()

	if ok {
		r.publish(bus.KindContactUpdated, id)
	}
}

// Active returns the open conversation's peer ID, or 0.
func (r *Registry) Active() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Get returns a snapshot of one contact.
func (r *Registry) Get(id int64) (models.Contact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[id]
	if !ok {
		return models.Contact{}, false
	}
	return *c, true
}

// Contacts returns a snapshot sorted descending by last-message time, with
// contacts that never messaged at the end.
func (r *Registry) Contacts() []models.Contact {
	r.mu.RLock()
	out := make([]models.Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, *c)
	}
	r.mu.RUnlock()

	sortContacts(out)
	return out
}

// sortContacts orders by recency; missing timestamps sort last, ties break
// by ID for a stable list.
func sortContacts(cs []models.Contact) {
	slices.SortStableFunc(cs, func(a, b models.Contact) int {
		switch {
		case a.LastMessageTime.IsZero() && b.LastMessageTime.IsZero():
			return cmp.Compare(a.ID, b.ID)
		case a.LastMessageTime.IsZero():
			return 1
		case b.LastMessageTime.IsZero():
			return -1
		case !a.LastMessageTime.Equal(b.LastMessageTime):
			return b.LastMessageTime.Compare(a.LastMessageTime)
		default:
			return cmp.Compare(a.ID, b.ID)
		}
	})
}

// synthesize creates a contact entry for a previously unknown participant.
// Callers hold the lock.
func (r *Registry) synthesize(peer int64, sender *models.WireSender, ts time.Time) *models.Contact {
	c := &models.Contact{ID: peer, DisplayName: strconv.FormatInt(peer, 10)}
	if sender != nil && sender.ID == peer {
		name := sender.FirstName
		if sender.LastName != "" {
			if name != "" {
				name += " "
			}
			name += sender.LastName
		}
		if name != "" {
			c.DisplayName = name
		}
		c.AvatarURL = sender.Avatar
		// Someone who just messaged us is online right now.
		c.IsOnline = true
		c.LastSeenAt = ts
	}
	return c
}

func (r *Registry) publish(kind string, id int64) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: id})
}
