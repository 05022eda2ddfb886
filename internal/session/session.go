// Package session wires the socket, codec, conversation buffer, contact
// registry and REST client into one chat session for a logged-in user.
// Every inbound frame flows through exactly one dispatch path here.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dormchat/internal/bus"
	"dormchat/internal/codec"
	"dormchat/internal/convo"
	"dormchat/internal/models"
	"dormchat/internal/outbox"
	"dormchat/internal/rest"
	"dormchat/internal/roster"
	"dormchat/internal/store"
	"dormchat/internal/transport"
)

const defaultContactRefresh = 60 * time.Second

// Session owns the runtime state of one connected user.
type Session struct {
	me       int64
	conn     *transport.Connector
	api      *rest.Client
	messages *convo.Store
	contacts *roster.Registry
	sender   *outbox.Sender
	cache    *store.DB // optional local cache, nil disables persistence
	bus      *bus.Bus
	logger   *zap.Logger

	refresh time.Duration
	cancel  context.CancelFunc
}

// Params collects the session dependencies.
type Params struct {
	UserID         int64
	Connector      *transport.Connector
	API            *rest.Client
	Messages       *convo.Store
	Contacts       *roster.Registry
	Sender         *outbox.Sender
	Cache          *store.DB
	Bus            *bus.Bus
	Logger         *zap.Logger
	ContactRefresh time.Duration
}

// New creates a session and installs its frame handler on the connector.
func New(p Params) *Session {
	if p.ContactRefresh <= 0 {
		p.ContactRefresh = defaultContactRefresh
	}
	s := &Session{
		me:       p.UserID,
		conn:     p.Connector,
		api:      p.API,
		messages: p.Messages,
		contacts: p.Contacts,
		sender:   p.Sender,
		cache:    p.Cache,
		bus:      p.Bus,
		logger:   p.Logger,
		refresh:  p.ContactRefresh,
	}
	s.conn.SetHandler(s.handleFrame)
	return s
}

// Start connects the socket, primes the contact list and begins the
// periodic contact refresh. Cached contacts are loaded first so the UI has
// data even when the initial fetch fails.
func (s *Session) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cache != nil {
		if cached, err := s.cache.ListContacts(); err != nil {
			s.logger.Warn("failed to load cached contacts", zap.Error(err))
		} else if len(cached) > 0 {
			s.contacts.SyncFromFetch(cached)
		}
	}

	if err := s.conn.EnsureConnected(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := s.refreshContacts(ctx); err != nil {
		s.logger.Warn("initial contact fetch failed", zap.Error(err))
	}

	go s.refreshLoop(ctx)
	return nil
}

// Stop tears the session down. The socket is closed cleanly and no
// reconnect is scheduled.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.conn.Disconnect()
}

// Send delegates to the outbox sender.
func (s *Session) Send(ctx context.Context, receiverID int64, content string) (string, error) {
	return s.sender.Send(ctx, receiverID, content)
}

// OpenConversation switches the active chat, resets unread for the peer and
// loads message history. Cached history is served when the fetch fails.
func (s *Session) OpenConversation(ctx context.Context, peer int64) ([]models.Message, error) {
	s.contacts.SetActive(peer)
	s.messages.Clear()

	history, err := s.api.ChatHistory(ctx, s.me, peer, 0, 0)
	if err != nil {
		s.logger.Warn("history fetch failed", zap.Error(err), zap.Int64("peer", peer))
		if s.cache == nil {
			return nil, err
		}
		cached, cacheErr := s.cache.ListConversation(s.me, peer, 0, 0)
		if cacheErr != nil {
			return nil, err
		}
		s.messages.Load(cached)
		return cached, nil
	}

	s.messages.Load(history)
	if s.cache != nil {
		for i := range history {
			if err := s.cache.UpsertMessage(&history[i]); err != nil {
				s.logger.Warn("failed to cache message", zap.Error(err), zap.String("msg_id", history[i].ID))
				break
			}
		}
	}
	return history, nil
}

// CloseConversation leaves the open chat. Unread counting for that peer
// resumes immediately; the buffer is dropped since the next open refetches.
func (s *Session) CloseConversation() {
	s.contacts.SetActive(0)
	s.messages.Clear()
}

// Conversation returns the buffered messages with the given peer.
func (s *Session) Conversation(peer int64) []models.Message {
	return s.messages.Conversation(s.me, peer)
}

// Contacts returns the current contact list, most recent first.
func (s *Session) Contacts() []models.Contact {
	return s.contacts.Contacts()
}

func (s *Session) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.refreshContacts(ctx); err != nil {
				s.logger.Warn("contact refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) refreshContacts(ctx context.Context) error {
	cs, err := s.api.Contacts(ctx, s.me)
	if err != nil {
		return err
	}
	s.contacts.SyncFromFetch(cs)
	if s.cache != nil {
		if err := s.cache.BulkUpsertContacts(cs); err != nil {
			s.logger.Warn("failed to cache contacts", zap.Error(err))
		}
	}
	return nil
}

// handleFrame is the single ingestion path for inbound frames.
func (s *Session) handleFrame(raw []byte) {
	switch f := codec.Decode(raw).(type) {
	case codec.Presence:
		s.contacts.OnPresenceEvent(f.UserID, f.IsOnline, f.Timestamp)

	case codec.Confirmation:
		s.messages.Reconcile(f.Message, f.TempID)
		s.contacts.OnMessageReceived(f.Message, nil)
		if s.cache != nil {
			if f.TempID != "" {
				_ = s.cache.DeleteMessage(f.TempID)
			}
			if err := s.cache.UpsertMessage(&f.Message); err != nil {
				s.logger.Warn("failed to cache confirmation", zap.Error(err), zap.String("msg_id", f.Message.ID))
			}
		}
		s.publishUpserted(f.Message.ID)

	case codec.PeerMessage:
		s.messages.Append(f.Message)
		s.contacts.OnMessageReceived(f.Message, f.Sender)
		if s.cache != nil {
			if err := s.cache.UpsertMessage(&f.Message); err != nil {
				s.logger.Warn("failed to cache message", zap.Error(err), zap.String("msg_id", f.Message.ID))
			}
		}
		s.publishUpserted(f.Message.ID)

	case codec.ServerError:
		s.logger.Warn("server reported error", zap.String("reason", f.Reason))

	case codec.Malformed:
		s.logger.Warn("discarding malformed frame", zap.Error(f.Err))
	}
}

func (s *Session) publishUpserted(msgID string) {
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload:   map[string]string{"msg_id": msgID},
	})
}
