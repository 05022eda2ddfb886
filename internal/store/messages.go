package store

import (
	"time"

	"dormchat/internal/models"
)

// UpsertMessage inserts or updates a message, idempotent on the message ID.
// Provisional rows are replaced when the confirmed copy arrives under a new
// ID, so callers should delete the provisional row via DeleteMessage first
// when reconciling.
func (db *DB) UpsertMessage(m *models.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (msg_id, sender_id, receiver_id, content, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			timestamp = excluded.timestamp`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, string(m.Status), m.Timestamp.UnixMilli(), now)
	return err
}

// DeleteMessage removes a message by ID. Used to drop a provisional row once
// its confirmed counterpart has been stored.
func (db *DB) DeleteMessage(id string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE msg_id = ?`, id)
	return err
}

// ListConversation returns messages between two users in ascending timestamp
// order, most recent page first selected via keyset pagination.
func (db *DB) ListConversation(a, b int64, beforeTs int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT msg_id, sender_id, receiver_id, content, status, timestamp
		FROM (
			SELECT msg_id, sender_id, receiver_id, content, status, timestamp
			FROM messages
			WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
			  AND timestamp < ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC`, a, b, b, a, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []models.Message
	for rows.Next() {
		var (
			m      models.Message
			status string
			ts     int64
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &status, &ts); err != nil {
			return nil, err
		}
		m.Status = models.MessageStatus(status)
		m.Timestamp = time.UnixMilli(ts)
		m.DisplayTime = models.FormatDisplayTime(m.Timestamp)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
