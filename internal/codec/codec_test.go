package codec

import (
	"testing"
	"time"

	"dormchat/internal/models"
)

func TestDecodePresence(t *testing.T) {
	raw := []byte(`{"type":"presence","user_id":7,"is_online":true,"timestamp":"2025-03-10T14:30:00Z"}`)

	f := Decode(raw)
	p, ok := f.(Presence)
	if !ok {
		t.Fatalf("frame type = %T, want Presence", f)
	}
	if p.UserID != 7 || !p.IsOnline {
		t.Errorf("presence = %+v, want user 7 online", p)
	}
	want := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	if !p.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", p.Timestamp, want)
	}
}

func TestDecodeConfirmation(t *testing.T) {
	raw := []byte(`{"status":"success","data":{"id":42,"sender_id":1,"receiver_id":2,"content":"hello","timestamp":"2025-03-10T14:30:00Z","temp_id":"tmp-abc"}}`)

	f := Decode(raw)
	c, ok := f.(Confirmation)
	if !ok {
		t.Fatalf("frame type = %T, want Confirmation", f)
	}
	if c.Message.ID != "42" {
		t.Errorf("id = %q, want 42 (numeric id normalized to string)", c.Message.ID)
	}
	if c.Message.Status != models.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", c.Message.Status)
	}
	if c.TempID != "tmp-abc" {
		t.Errorf("temp id = %q, want tmp-abc", c.TempID)
	}
	if c.Message.DisplayTime != "14:30" {
		t.Errorf("display time = %q, want 14:30", c.Message.DisplayTime)
	}
}

func TestDecodeConfirmationWithoutTempID(t *testing.T) {
	raw := []byte(`{"status":"success","data":{"id":42,"sender_id":1,"receiver_id":2,"content":"hello","timestamp":"2025-03-10T14:30:00Z"}}`)

	f := Decode(raw)
	c, ok := f.(Confirmation)
	if !ok {
		t.Fatalf("frame type = %T, want Confirmation", f)
	}
	if c.TempID != "" {
		t.Errorf("temp id = %q, want empty", c.TempID)
	}
}

func TestDecodeServerError(t *testing.T) {
	raw := []byte(`{"status":"error","message":"receiver not found"}`)

	f := Decode(raw)
	e, ok := f.(ServerError)
	if !ok {
		t.Fatalf("frame type = %T, want ServerError", f)
	}
	if e.Reason != "receiver not found" {
		t.Errorf("reason = %q", e.Reason)
	}
}

func TestDecodePeerMessage(t *testing.T) {
	raw := []byte(`{"id":99,"sender_id":2,"receiver_id":1,"content":"hey","timestamp":"2025-03-10T09:05:00Z","sender":{"id":2,"first_name":"Ana","last_name":"Reis","avatar":"/a.png"}}`)

	f := Decode(raw)
	pm, ok := f.(PeerMessage)
	if !ok {
		t.Fatalf("frame type = %T, want PeerMessage", f)
	}
	if pm.Message.ID != "99" || pm.Message.SenderID != 2 {
		t.Errorf("message = %+v", pm.Message)
	}
	if pm.Sender == nil || pm.Sender.FirstName != "Ana" {
		t.Errorf("sender = %+v, want Ana", pm.Sender)
	}
}

func TestDecodeNaiveTimestamp(t *testing.T) {
	// The backend serializes naive datetimes without a zone offset.
	raw := []byte(`{"id":5,"sender_id":2,"receiver_id":1,"content":"x","timestamp":"2025-03-10T09:05:00.123456"}`)

	f := Decode(raw)
	pm, ok := f.(PeerMessage)
	if !ok {
		t.Fatalf("frame type = %T, want PeerMessage", f)
	}
	if pm.Message.Timestamp.IsZero() {
		t.Error("timestamp not parsed")
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{not json`},
		{"empty object", `{}`},
		{"wrong shapes", `{"foo":"bar"}`},
		{"bad presence timestamp", `{"type":"presence","user_id":1,"is_online":true,"timestamp":"not-a-time"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Decode([]byte(tt.raw))
			m, ok := f.(Malformed)
			if !ok {
				t.Fatalf("frame type = %T, want Malformed", f)
			}
			if m.Err == nil {
				t.Error("Malformed.Err is nil")
			}
		})
	}
}

// TestDecodeIsTotal feeds every variant through one switch to make sure the
// set stays closed and dispatchable.
func TestDecodeIsTotal(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"type":"presence","user_id":1,"is_online":false,"timestamp":"2025-03-10T00:00:00Z"}`),
		[]byte(`{"status":"success","data":{"id":1,"sender_id":1,"receiver_id":2,"content":"a","timestamp":"2025-03-10T00:00:00Z"}}`),
		[]byte(`{"status":"error","message":"nope"}`),
		[]byte(`{"id":1,"sender_id":2,"receiver_id":1,"content":"b","timestamp":"2025-03-10T00:00:00Z"}`),
		[]byte(`garbage`),
	}
	for _, raw := range frames {
		switch f := Decode(raw).(type) {
		case Presence, Confirmation, ServerError, PeerMessage, Malformed:
			// All known variants.
		default:
			t.Fatalf("unknown frame variant %T", f)
		}
	}
}
