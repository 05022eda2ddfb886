package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the chat client. Subscribers filter by namespace
// prefix, so "message." matches every message event.
const (
	KindConnected     = "ws.connected"
	KindDisconnected  = "ws.disconnected"
	KindStatusChanged = "session.status_changed"

	KindMessageUpserted   = "message.upserted"
	KindMessageSendFailed = "message.send_failed"

	KindContactUpdated  = "contact.updated"
	KindPresenceUpdated = "contact.presence"
)
