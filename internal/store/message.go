package store

import (
	"database/sql"
	"time"

	"github.com/pentacloud/warelay/internal/status"
)

const messageColumns = `id, provider_msg_id, conversation_id, content, sender, status, timestamp, recipient_id, contact_phone`

// InsertMessage stores a new message. The partial unique index on
// (conversation_id, provider_msg_id) makes a retried provider delivery
// fail here even if two writers raced past the dedupe check.
func (db *DB) InsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (id, provider_msg_id, conversation_id, content, sender, status, timestamp, recipient_id, contact_phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProviderMsgID, m.ConversationID, m.Content, m.Sender, string(m.Status), m.Timestamp, m.RecipientID, m.ContactPhone, now)
	return err
}

// GetMessage returns a message by its id, or nil if absent.
func (db *DB) GetMessage(id string) (*Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// GetMessageByProviderID returns the message carrying the given provider
// message id, or nil. conversationID narrows the lookup when known;
// empty means search all conversations (status webhooks carry no
// conversation key).
func (db *DB) GetMessageByProviderID(conversationID, providerMsgID string) (*Message, error) {
	if providerMsgID == "" {
		return nil, nil
	}
	if conversationID != "" {
		row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND provider_msg_id = ?`, conversationID, providerMsgID)
		return scanMessage(row)
	}
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE provider_msg_id = ? LIMIT 1`, providerMsgID)
	return scanMessage(row)
}

// MessagesNear returns messages in a conversation whose timestamp lies
// within the closed window [ts-window, ts+window]. Used by the
// duplicate check.
func (db *DB) MessagesNear(conversationID string, ts, window int64) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND timestamp BETWEEN ? AND ?`,
		conversationID, ts-window, ts+window)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// ListMessages returns messages for a conversation in ascending
// (timestamp, id) order. afterTs is an exclusive lower bound; 0 means
// from the beginning.
func (db *DB) ListMessages(conversationID string, afterTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND timestamp > ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?`, conversationID, afterTs, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// SetMessageStatus compares-and-swaps a message's status. Returns true
// when the row was updated, false when the message no longer carries
// the expected current status.
func (db *DB) SetMessageStatus(id string, from, to status.Status) (bool, error) {
	res, err := db.Exec(`UPDATE messages SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMessageProviderID records the provider-assigned id on a locally
// originated message after a successful send.
func (db *DB) SetMessageProviderID(id, providerMsgID string) error {
	_, err := db.Exec(`UPDATE messages SET provider_msg_id = ? WHERE id = ?`, providerMsgID, id)
	return err
}

// ClearMessages deletes all stored messages, conversations and outbox
// rows. Administrative reset.
func (db *DB) ClearMessages() error {
	for _, q := range []string{
		`DELETE FROM messages`,
		`DELETE FROM conversations`,
		`DELETE FROM outbox`,
	} {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	var st string
	err := row.Scan(&m.ID, &m.ProviderMsgID, &m.ConversationID, &m.Content, &m.Sender, &st, &m.Timestamp, &m.RecipientID, &m.ContactPhone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Status = status.Status(st)
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var st string
		if err := rows.Scan(&m.ID, &m.ProviderMsgID, &m.ConversationID, &m.Content, &m.Sender, &st, &m.Timestamp, &m.RecipientID, &m.ContactPhone); err != nil {
			return nil, err
		}
		m.Status = status.Status(st)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
