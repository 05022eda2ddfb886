package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"dormchat/internal/bus"
	"dormchat/internal/convo"
	"dormchat/internal/models"
	"dormchat/internal/outbox"
	"dormchat/internal/rest"
	"dormchat/internal/roster"
	"dormchat/internal/status"
	"dormchat/internal/store"
	"dormchat/internal/transport"
)

// wsPeer is the server side of the socket under test. Tests push frames to
// the client and read what the client sent.
type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
	got  chan []byte
}

func (p *wsPeer) serve(c *websocket.Conn) {
	p.mu.Lock()
	p.conn = c
	p.mu.Unlock()
	for {
		_, data, err := c.Read(context.Background())
		if err != nil {
			return
		}
		p.got <- data
	}
}

func (p *wsPeer) push(t *testing.T, frame string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p.mu.Lock()
		c := p.conn
		p.mu.Unlock()
		if c != nil {
			if err := c.Write(context.Background(), websocket.MessageText, []byte(frame)); err != nil {
				t.Fatalf("push frame: %v", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no client connection to push to")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// restStub serves the two REST endpoints with per-test payloads.
type restStub struct {
	mu       sync.Mutex
	contacts string
	history  string
	fail     bool
}

func (r *restStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.fail {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		switch {
		case strings.HasPrefix(req.URL.Path, "/messages-contacts/"):
			_, _ = w.Write([]byte(r.contacts))
		case strings.HasPrefix(req.URL.Path, "/messages/"):
			_, _ = w.Write([]byte(r.history))
		default:
			http.NotFound(w, req)
		}
	})
}

type harness struct {
	session *Session
	peer    *wsPeer
	stub    *restStub
	cache   *store.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	peer := &wsPeer{got: make(chan []byte, 16)}
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		peer.serve(c)
	}))
	t.Cleanup(wsSrv.Close)

	stub := &restStub{contacts: "[]", history: "[]"}
	restSrv := httptest.NewServer(stub.handler())
	t.Cleanup(restSrv.Close)

	cache, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	b := bus.New()
	logger := zap.NewNop()
	machine := status.NewMachine(b)
	conn := transport.New("ws"+strings.TrimPrefix(wsSrv.URL, "http"), 1, machine, b, logger)
	conn.SetBackoff(transport.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, Growth: 1.5})

	messages := convo.NewStore()
	contacts := roster.NewRegistry(1, b)
	sender := outbox.NewSender(1, conn, messages, contacts, b, logger)

	s := New(Params{
		UserID:         1,
		Connector:      conn,
		API:            rest.NewClient(restSrv.URL),
		Messages:       messages,
		Contacts:       contacts,
		Sender:         sender,
		Cache:          cache,
		Bus:            b,
		Logger:         logger,
		ContactRefresh: time.Hour,
	})
	t.Cleanup(s.Stop)

	return &harness{session: s, peer: peer, stub: stub, cache: cache}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartPrimesContacts(t *testing.T) {
	h := newHarness(t)
	h.stub.contacts = `[
		{"id": 2, "first_name": "Bruno", "last_name": "Lima", "last_message": "e ai",
		 "last_message_time": "2026-03-01T09:00:00", "unread_count": 3}
	]`

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cs := h.session.Contacts()
	if len(cs) != 1 {
		t.Fatalf("got %d contacts, want 1", len(cs))
	}
	if cs[0].DisplayName != "Bruno Lima" || cs[0].UnreadCount != 3 {
		t.Errorf("unexpected contact: %+v", cs[0])
	}

	// Fetch results land in the cache too.
	cached, err := h.cache.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 1 || cached[0].ID != 2 {
		t.Errorf("cache not primed: %+v", cached)
	}
}

func TestPeerMessageReachesConversation(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.peer.push(t, `{"id": 77, "sender_id": 2, "receiver_id": 1, "content": "oi",
		"timestamp": "2026-03-01T10:00:00",
		"sender": {"id": 2, "first_name": "Bruno", "last_name": "Lima"}}`)

	waitFor(t, "peer message in conversation", func() bool {
		return len(h.session.Conversation(2)) == 1
	})

	msgs := h.session.Conversation(2)
	if msgs[0].ID != "77" || msgs[0].Status != models.StatusConfirmed {
		t.Errorf("unexpected message: %+v", msgs[0])
	}

	// Sender was unknown; the author block synthesizes the contact, and the
	// inactive chat gains an unread.
	cs := h.session.Contacts()
	if len(cs) != 1 || cs[0].DisplayName != "Bruno Lima" || cs[0].UnreadCount != 1 {
		t.Errorf("contact not synthesized: %+v", cs)
	}
}

func TestSendAndConfirmation(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	tempID, err := h.session.Send(context.Background(), 2, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Pending copy is visible immediately.
	msgs := h.session.Conversation(2)
	if len(msgs) != 1 || msgs[0].ID != tempID || msgs[0].Status != models.StatusPending {
		t.Fatalf("no pending copy: %+v", msgs)
	}

	// The server receives the frame and confirms it, echoing the temp ID.
	var frame models.OutboundFrame
	select {
	case raw := <-h.peer.got:
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("outbound frame: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
	if frame.TempID != tempID || frame.Content != "hello" {
		t.Fatalf("unexpected outbound frame: %+v", frame)
	}

	h.peer.push(t, fmt.Sprintf(`{"status": "success", "data": {
		"id": 500, "sender_id": 1, "receiver_id": 2, "content": "hello",
		"timestamp": "2026-03-01T10:00:00", "temp_id": %q}}`, tempID))

	waitFor(t, "confirmation to replace the pending copy", func() bool {
		msgs := h.session.Conversation(2)
		return len(msgs) == 1 && msgs[0].ID == "500"
	})
	got := h.session.Conversation(2)[0]
	if got.Status != models.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", got.Status)
	}
}

func TestPresenceUpdatesContact(t *testing.T) {
	h := newHarness(t)
	h.stub.contacts = `[{"id": 2, "first_name": "Bruno", "is_logged_in": false}]`
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.peer.push(t, `{"type": "presence", "user_id": 2, "is_online": true,
		"timestamp": "2026-03-01T10:00:00"}`)

	waitFor(t, "presence to flip online", func() bool {
		cs := h.session.Contacts()
		return len(cs) == 1 && cs[0].IsOnline
	})
}

func TestOpenConversationLoadsHistory(t *testing.T) {
	h := newHarness(t)
	h.stub.contacts = `[{"id": 2, "first_name": "Bruno", "unread_count": 5,
		"last_message_time": "2026-03-01T09:00:00"}]`
	h.stub.history = `[
		{"id": 11, "sender_id": 2, "receiver_id": 1, "content": "second", "timestamp": "2026-03-01T10:01:00"},
		{"id": 10, "sender_id": 1, "receiver_id": 2, "content": "first", "timestamp": "2026-03-01T10:00:00"}
	]`
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	msgs, err := h.session.OpenConversation(context.Background(), 2)
	if err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "10" || msgs[1].ID != "11" {
		t.Errorf("history wrong: %+v", msgs)
	}

	// Opening the chat clears its unread count.
	cs := h.session.Contacts()
	if len(cs) != 1 || cs[0].UnreadCount != 0 {
		t.Errorf("unread not cleared: %+v", cs)
	}
}

func TestCloseConversationResumesUnread(t *testing.T) {
	h := newHarness(t)
	h.stub.contacts = `[{"id": 2, "first_name": "Bruno"}]`
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.session.OpenConversation(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	// While the chat is open, an inbound message stays read.
	h.peer.push(t, `{"id": 80, "sender_id": 2, "receiver_id": 1, "content": "seen",
		"timestamp": "2026-03-01T10:00:00"}`)
	waitFor(t, "message while open", func() bool {
		return len(h.session.Conversation(2)) == 1
	})
	if cs := h.session.Contacts(); cs[0].UnreadCount != 0 {
		t.Fatalf("unread = %d while conversation open, want 0", cs[0].UnreadCount)
	}

	// After backing out, the same peer's messages count as unread again.
	h.session.CloseConversation()
	h.peer.push(t, `{"id": 81, "sender_id": 2, "receiver_id": 1, "content": "missed",
		"timestamp": "2026-03-01T10:01:00"}`)

	waitFor(t, "unread after close", func() bool {
		cs := h.session.Contacts()
		return len(cs) == 1 && cs[0].UnreadCount == 1
	})
}

func TestOpenConversationFallsBackToCache(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Prime the cache, then make the API unavailable.
	if err := h.cache.UpsertMessage(&models.Message{
		ID: "10", SenderID: 1, ReceiverID: 2, Content: "cached",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:    models.StatusConfirmed,
	}); err != nil {
		t.Fatal(err)
	}
	h.stub.mu.Lock()
	h.stub.fail = true
	h.stub.mu.Unlock()

	msgs, err := h.session.OpenConversation(context.Background(), 2)
	if err != nil {
		t.Fatalf("OpenConversation with cache: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "cached" {
		t.Errorf("cache fallback wrong: %+v", msgs)
	}
}

func TestMalformedFrameDoesNotKillSession(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.peer.push(t, `{{{not json`)
	h.peer.push(t, `{"status": "error", "message": "user not found"}`)
	h.peer.push(t, `{"id": 78, "sender_id": 2, "receiver_id": 1, "content": "still here",
		"timestamp": "2026-03-01T10:05:00"}`)

	waitFor(t, "frame after garbage to be processed", func() bool {
		return len(h.session.Conversation(2)) == 1
	})
}
