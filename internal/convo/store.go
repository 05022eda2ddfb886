// Package convo holds the in-memory message buffer for the open
// conversation and resolves optimistic sends against server confirmations.
package convo

import (
	"slices"
	"sync"

	"dormchat/internal/models"
)

// Store is the single source of truth for per-conversation message lists.
// Messages enter either optimistically (a send awaiting confirmation) or
// confirmed (peer frames, confirmations, history fetches). The only allowed
// status transitions are pending→confirmed and pending→failed.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// AddOptimistic appends a pending message keyed by its temporary ID.
// Exactly one entry per send call; the caller owns temp ID uniqueness.
func (s *Store) AddOptimistic(m models.Message) {
	m.Status = models.StatusPending
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

// Append adds a confirmed peer or history message. Idempotent on ID.
func (s *Store) Append(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexByID(m.ID) >= 0 {
		return
	}
	m.Status = models.StatusConfirmed
	s.messages = append(s.messages, m)
}

// Reconcile merges a server-confirmed message. If the confirmed ID is
// already present this is a no-op. Otherwise the matching pending entry is
// replaced in place: by echoed temp ID when the server provides one, else by
// the (sender, identical content) heuristic over provisional entries. With no
// pending counterpart the message is appended as new.
func (s *Store) Reconcile(m models.Message, tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexByID(m.ID) >= 0 {
		return
	}
	m.Status = models.StatusConfirmed

	if tempID != "" {
		if i := s.indexByID(tempID); i >= 0 && s.messages[i].Status == models.StatusPending {
			s.messages[i] = m
			return
		}
	}

	// The heuristic only ever consumes provisional entries; a pending row
	// that somehow carries a server ID (e.g. restored from cache) is left
	// for its own confirmation.
	for i := range s.messages {
		p := &s.messages[i]
		if p.Status == models.StatusPending && p.Provisional() && p.SenderID == m.SenderID && p.Content == m.Content {
			s.messages[i] = m
			return
		}
	}

	s.messages = append(s.messages, m)
}

// MarkFailed transitions the pending message with the given temp ID to
// failed. Returns false if no such pending entry exists.
func (s *Store) MarkFailed(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexByID(tempID)
	if i < 0 || s.messages[i].Status != models.StatusPending {
		return false
	}
	s.messages[i].Status = models.StatusFailed
	return true
}

// Load replaces the buffer with a freshly fetched history slice.
func (s *Store) Load(msgs []models.Message) {
	s.mu.Lock()
	s.messages = slices.Clone(msgs)
	s.mu.Unlock()
}

// Conversation returns all messages between users a and b, in either
// direction, ordered by timestamp ascending. The sort is stable so
// optimistic messages sharing a local send time keep insertion order.
func (s *Store) Conversation(a, b int64) []models.Message {
	s.mu.RLock()
	var out []models.Message
	for _, m := range s.messages {
		if m.InConversation(a, b) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(x, y models.Message) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	return out
}

// Clear empties the buffer. Called on conversation switch before the
// history refetch.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// Len returns the number of buffered messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// indexByID returns the position of the message with the given ID, or -1.
// Callers hold the lock.
func (s *Store) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}
