package store

import (
	"database/sql"
	"fmt"
	"time"

	"dormchat/internal/models"
)

// UpsertContact inserts or updates a contact. Empty names and avatars never
// overwrite known values, so a bare presence frame cannot erase profile data
// fetched earlier.
func (db *DB) UpsertContact(c *models.Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (id, display_name, avatar_url, last_message, last_message_at, unread_count, is_group, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE contacts.display_name END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE contacts.avatar_url END,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			is_group = excluded.is_group,
			updated_at = excluded.updated_at`,
		c.ID, c.DisplayName, c.AvatarURL, c.LastMessage, lastMessageAt(c), c.UnreadCount, c.IsGroup, now)
	return err
}

// lastMessageAt maps a zero LastMessageTime to 0 so contacts with no
// conversation yet sort after everyone else.
func lastMessageAt(c *models.Contact) int64 {
	if c.LastMessageTime.IsZero() {
		return 0
	}
	return c.LastMessageTime.UnixMilli()
}

// BulkUpsertContacts inserts or updates multiple contacts in a single
// transaction. Used after a contact list fetch.
func (db *DB) BulkUpsertContacts(contacts []models.Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for i := range contacts {
		c := &contacts[i]
		if _, err := tx.Exec(`
			INSERT INTO contacts (id, display_name, avatar_url, last_message, last_message_at, unread_count, is_group, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE contacts.display_name END,
				avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE contacts.avatar_url END,
				last_message = excluded.last_message,
				last_message_at = excluded.last_message_at,
				unread_count = excluded.unread_count,
				is_group = excluded.is_group,
				updated_at = excluded.updated_at`,
			c.ID, c.DisplayName, c.AvatarURL, c.LastMessage, lastMessageAt(c), c.UnreadCount, c.IsGroup, now); err != nil {
			return fmt.Errorf("upsert contact %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetContact returns a contact by ID, or nil when unknown.
func (db *DB) GetContact(id int64) (*models.Contact, error) {
	var (
		c      models.Contact
		lastAt int64
	)
	err := db.QueryRow(`
		SELECT id, display_name, avatar_url, last_message, last_message_at, unread_count, is_group
		FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.DisplayName, &c.AvatarURL, &c.LastMessage, &lastAt, &c.UnreadCount, &c.IsGroup)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastAt > 0 {
		c.LastMessageTime = time.UnixMilli(lastAt)
	}
	return &c, nil
}

// ListContacts returns all cached contacts, most recent conversation first,
// contacts with no messages yet last.
func (db *DB) ListContacts() ([]models.Contact, error) {
	rows, err := db.Query(`
		SELECT id, display_name, avatar_url, last_message, last_message_at, unread_count, is_group
		FROM contacts
		ORDER BY last_message_at = 0, last_message_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		var (
			c      models.Contact
			lastAt int64
		)
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.AvatarURL, &c.LastMessage, &lastAt, &c.UnreadCount, &c.IsGroup); err != nil {
			return nil, err
		}
		if lastAt > 0 {
			c.LastMessageTime = time.UnixMilli(lastAt)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
