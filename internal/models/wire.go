package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// WireID accepts the message ID as the server sends it: a JSON number for
// persisted messages, or a string when a temp ID is echoed back.
type WireID string

func (w *WireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = WireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*w = WireID(n.String())
	return nil
}

// WireTime accepts the timestamp formats the backend emits: RFC 3339 with or
// without sub-second precision, and naive datetimes without a zone offset.
type WireTime struct {
	time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func (w *WireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		w.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range wireTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			w.Time = t
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("timestamp %q: %w", s, lastErr)
}

func (w WireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Time.Format(time.RFC3339Nano))
}

// WireSender is the embedded author block on peer message frames.
type WireSender struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

// WireMessage is a chat message as it appears on the wire, both inside
// success envelopes and as bare peer frames.
type WireMessage struct {
	ID         WireID      `json:"id"`
	SenderID   int64       `json:"sender_id"`
	ReceiverID int64       `json:"receiver_id"`
	Content    string      `json:"content"`
	Timestamp  WireTime    `json:"timestamp"`
	TempID     string      `json:"temp_id,omitempty"`
	Sender     *WireSender `json:"sender,omitempty"`
}

// ToMessage converts a wire message into the domain shape with status
// confirmed, since anything the server sends is authoritative.
func (wm *WireMessage) ToMessage() Message {
	return Message{
		ID:          string(wm.ID),
		SenderID:    wm.SenderID,
		ReceiverID:  wm.ReceiverID,
		Content:     wm.Content,
		Timestamp:   wm.Timestamp.Time,
		DisplayTime: FormatDisplayTime(wm.Timestamp.Time),
		Status:      StatusConfirmed,
	}
}

// OutboundFrame is the payload written to the socket for a user-authored
// message. The temp ID lets the client correlate the confirmation.
type OutboundFrame struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	TempID     string `json:"temp_id"`
	Timestamp  string `json:"timestamp"`
}

// WireContact is a contact summary as returned by the contacts endpoint.
type WireContact struct {
	ID              int64    `json:"id"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	ProfileImage    string   `json:"profile_image"`
	LastMessage     string   `json:"last_message"`
	LastMessageTime WireTime `json:"last_message_time"`
	UnreadCount     int      `json:"unread_count"`
	IsGroup         bool     `json:"is_group"`
	IsLoggedIn      bool     `json:"is_logged_in"`
	LastLogin       WireTime `json:"last_login"`
}

// ToContact converts a wire contact into the domain shape.
func (wc *WireContact) ToContact() Contact {
	name := wc.FirstName
	if wc.LastName != "" {
		if name != "" {
			name += " "
		}
		name += wc.LastName
	}
	if name == "" {
		name = strconv.FormatInt(wc.ID, 10)
	}
	return Contact{
		ID:              wc.ID,
		DisplayName:     name,
		AvatarURL:       wc.ProfileImage,
		LastMessage:     wc.LastMessage,
		LastMessageTime: wc.LastMessageTime.Time,
		UnreadCount:     wc.UnreadCount,
		IsGroup:         wc.IsGroup,
		IsOnline:        wc.IsLoggedIn,
		LastSeenAt:      wc.LastLogin.Time,
	}
}
