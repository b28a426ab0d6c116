package store

import "github.com/pentacloud/warelay/internal/status"

// Sender values for Message.Sender.
const (
	SenderUser    = "user"    // locally originated, outbound
	SenderContact = "contact" // remote, inbound
)

// Message is the canonical message record. Timestamp is Unix
// milliseconds UTC.
type Message struct {
	ID             string
	ProviderMsgID  string
	ConversationID string
	Content        string
	Sender         string
	Status         status.Status
	Timestamp      int64
	RecipientID    string
	ContactPhone   string
}

// Conversation is the per-contact summary record.
type Conversation struct {
	Phone              string
	Name               string
	Avatar             string
	LastSeen           int64
	LastMessageAt      int64
	LastMessagePreview string
}

// OutboxEntry is a durable record of an outbound send attempt.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	Body           string
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ProviderMsgID  string
}
