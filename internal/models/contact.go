package models

import "time"

// Contact is a conversation summary entry, distinct from the full message
// history: who the conversation is with, the latest message, and the unread
// and presence bookkeeping the conversation list renders.
type Contact struct {
	ID              int64
	DisplayName     string
	AvatarURL       string
	LastMessage     string
	LastMessageTime time.Time
	UnreadCount     int
	IsGroup         bool
	IsOnline        bool
	LastSeenAt      time.Time
}
