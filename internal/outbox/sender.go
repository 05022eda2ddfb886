// Package outbox turns a user-authored message into an optimistic local
// entry and a single socket write. The provisional message is visible
// immediately; the server confirmation later replaces it.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dormchat/internal/bus"
	"dormchat/internal/models"
)

// Wire is the connection the sender writes frames to.
type Wire interface {
	EnsureConnected(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
}

// MessageSink receives the provisional message and its failure transition.
type MessageSink interface {
	AddOptimistic(m models.Message)
	MarkFailed(tempID string) bool
}

// ContactSink keeps the conversation list preview in step with sends.
type ContactSink interface {
	OnMessageReceived(m models.Message, sender *models.WireSender)
}

// Sender builds outbound frames and records them optimistically.
type Sender struct {
	me       int64
	wire     Wire
	messages MessageSink
	contacts ContactSink
	bus      *bus.Bus
	logger   *zap.Logger

	now    func() time.Time
	tempID func() string
}

// NewSender creates a sender for the given user.
func NewSender(me int64, wire Wire, messages MessageSink, contacts ContactSink, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		me:       me,
		wire:     wire,
		messages: messages,
		contacts: contacts,
		bus:      b,
		logger:   logger,
		now:      time.Now,
		tempID: func() string {
			return models.TempIDPrefix + uuid.NewString()
		},
	}
}

// Send records the message locally with a provisional ID, then makes one
// attempt to put it on the wire. On failure the local copy is marked failed
// and the error is returned; there is no automatic retry.
func (s *Sender) Send(ctx context.Context, receiverID int64, content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty message")
	}

	now := s.now()
	tempID := s.tempID()

	m := models.Message{
		ID:          tempID,
		SenderID:    s.me,
		ReceiverID:  receiverID,
		Content:     content,
		Timestamp:   now,
		DisplayTime: models.FormatDisplayTime(now),
		Status:      models.StatusPending,
	}
	// Exactly one optimistic insert per user action, before any network IO.
	s.messages.AddOptimistic(m)
	s.contacts.OnMessageReceived(m, nil)
	s.publish(bus.KindMessageUpserted, tempID)

	payload, err := json.Marshal(models.OutboundFrame{
		SenderID:   s.me,
		ReceiverID: receiverID,
		Content:    content,
		TempID:     tempID,
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.fail(tempID, err)
		return tempID, err
	}

	if err := s.wire.EnsureConnected(ctx); err != nil {
		s.fail(tempID, err)
		return tempID, fmt.Errorf("connect: %w", err)
	}
	if err := s.wire.Send(ctx, payload); err != nil {
		s.fail(tempID, err)
		return tempID, fmt.Errorf("send: %w", err)
	}

	return tempID, nil
}

func (s *Sender) fail(tempID string, err error) {
	s.logger.Error("failed to send message", zap.Error(err), zap.String("temp_id", tempID))
	if s.messages.MarkFailed(tempID) {
		s.publish(bus.KindMessageSendFailed, tempID)
	}
}

func (s *Sender) publish(kind, tempID string) {
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   map[string]string{"msg_id": tempID},
	})
}
