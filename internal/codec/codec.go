// Package codec normalizes inbound WebSocket frames into a closed set of
// variants. The server speaks three shapes on the same socket: presence
// events, success envelopes confirming our own sends, and bare peer
// messages. Dispatch is by type switch; a Malformed frame is the only
// outcome for bad input — Decode never fails loudly, because one bad frame
// must not take down the session.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"dormchat/internal/models"
)

// Frame is one decoded inbound frame.
type Frame interface {
	frame()
}

// Presence reports that a user's online status changed.
type Presence struct {
	UserID    int64
	IsOnline  bool
	Timestamp time.Time
}

// Confirmation acknowledges a message this client sent. TempID carries the
// echoed client correlation ID when the server provides one; it is empty on
// server paths that strip it.
type Confirmation struct {
	Message models.Message
	TempID  string
}

// ServerError is an error envelope pushed by the server.
type ServerError struct {
	Reason string
}

// PeerMessage is a message authored by another user. Sender carries the
// embedded author block when present, used to synthesize contacts for
// first-time senders.
type PeerMessage struct {
	Message models.Message
	Sender  *models.WireSender
}

// Malformed wraps a frame that could not be decoded. Callers log and discard.
type Malformed struct {
	Err error
}

func (Presence) frame()     {}
func (Confirmation) frame() {}
func (ServerError) frame()  {}
func (PeerMessage) frame()  {}
func (Malformed) frame()    {}

// header holds just enough of a frame to pick its variant.
type header struct {
	Type    string          `json:"type"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type presenceFrame struct {
	UserID    int64           `json:"user_id"`
	IsOnline  bool            `json:"is_online"`
	Timestamp models.WireTime `json:"timestamp"`
}

// Decode parses a raw frame into exactly one variant.
func Decode(raw []byte) Frame {
	var p header
	if err := json.Unmarshal(raw, &p); err != nil {
		return Malformed{Err: fmt.Errorf("parse frame: %w", err)}
	}

	switch {
	case p.Type == "presence":
		var pf presenceFrame
		if err := json.Unmarshal(raw, &pf); err != nil {
			return Malformed{Err: fmt.Errorf("parse presence frame: %w", err)}
		}
		return Presence{
			UserID:    pf.UserID,
			IsOnline:  pf.IsOnline,
			Timestamp: pf.Timestamp.Time,
		}

	case p.Status == "success" && len(p.Data) > 0:
		var wm models.WireMessage
		if err := json.Unmarshal(p.Data, &wm); err != nil {
			return Malformed{Err: fmt.Errorf("parse confirmation data: %w", err)}
		}
		return Confirmation{
			Message: wm.ToMessage(),
			TempID:  wm.TempID,
		}

	case p.Status == "error":
		return ServerError{Reason: p.Message}

	default:
		var wm models.WireMessage
		if err := json.Unmarshal(raw, &wm); err != nil {
			return Malformed{Err: fmt.Errorf("parse peer message: %w", err)}
		}
		if wm.SenderID == 0 && wm.ReceiverID == 0 {
			return Malformed{Err: fmt.Errorf("frame has no participants")}
		}
		return PeerMessage{
			Message: wm.ToMessage(),
			Sender:  wm.Sender,
		}
	}
}
