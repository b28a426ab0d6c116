package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation summary record.
// Empty incoming fields never clobber existing values.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (phone, name, avatar, last_seen, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), conversations.name),
			avatar = COALESCE(NULLIF(excluded.avatar, ''), conversations.avatar),
			last_seen = MAX(conversations.last_seen, excluded.last_seen),
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at
				THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.Phone, c.Name, c.Avatar, c.LastSeen, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// ListConversations returns conversations sorted by last message
// timestamp descending.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT phone, name, avatar, last_seen, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.Phone, &c.Name, &c.Avatar, &c.LastSeen, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by phone number.
func (db *DB) GetConversation(phone string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT phone, name, avatar, last_seen, last_message_at, last_message_preview
		FROM conversations WHERE phone = ?`, phone).
		Scan(&c.Phone, &c.Name, &c.Avatar, &c.LastSeen, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
