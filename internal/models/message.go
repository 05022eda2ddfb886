package models

import "time"

// MessageStatus tracks the delivery state of a message in the local store.
type MessageStatus string

const (
	// StatusPending marks an optimistic message that has been handed to the
	// socket but not yet confirmed by the server.
	StatusPending MessageStatus = "pending"
	// StatusConfirmed marks a message acknowledged by the server (or received
	// from a peer / history fetch, which are confirmed by definition).
	StatusConfirmed MessageStatus = "confirmed"
	// StatusFailed marks an optimistic message whose send attempt failed.
	StatusFailed MessageStatus = "failed"
)

// TempIDPrefix marks client-generated provisional message IDs.
const TempIDPrefix = "tmp-"

// Message is a single direct message. ID is either a server-assigned
// identifier (numeric on the wire, normalized to a string) or a
// client-generated temporary ID carrying the "tmp-" prefix.
type Message struct {
	ID          string
	SenderID    int64
	ReceiverID  int64
	Content     string
	Timestamp   time.Time
	DisplayTime string
	Status      MessageStatus
}

// Provisional reports whether the message still carries a temporary ID.
func (m *Message) Provisional() bool {
	return len(m.ID) >= len(TempIDPrefix) && m.ID[:len(TempIDPrefix)] == TempIDPrefix
}

// InConversation reports whether the message belongs to the conversation
// between users a and b, in either direction.
func (m *Message) InConversation(a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// FormatDisplayTime renders a timestamp the way the message thread shows it.
func FormatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("15:04")
}
