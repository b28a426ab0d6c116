// Package ledger owns the ordered, deduplicated set of messages per
// conversation. All mutation of stored messages goes through it.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pentacloud/warelay/internal/live"
	"github.com/pentacloud/warelay/internal/status"
	"github.com/pentacloud/warelay/internal/store"
	"go.uber.org/zap"
)

// ErrDuplicate marks an append rejected by the duplicate check. Callers
// treat it as "already recorded", not a failure.
var ErrDuplicate = errors.New("duplicate message")

// Ledger serializes the dedupe-check-then-insert sequence per
// conversation so two concurrent appends of the same logical message
// cannot both pass the check.
type Ledger struct {
	db     *store.DB
	live   *live.Channel
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger over the given store.
func New(db *store.DB, lv *live.Channel, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		live:   lv,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) convLock(conversationID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[conversationID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[conversationID] = lk
	}
	return lk
}

// Append stores a candidate message unless the duplicate check rejects
// it. Returns ErrDuplicate for a detected duplicate. An empty
// conversation id is a caller bug and fails fast.
func (l *Ledger) Append(candidate *store.Message) (*store.Message, error) {
	if candidate.ConversationID == "" {
		return nil, fmt.Errorf("append: empty conversation id")
	}

	lk := l.convLock(candidate.ConversationID)
	lk.Lock()
	defer lk.Unlock()

	dup, err := l.isDuplicate(candidate)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if dup {
		return nil, ErrDuplicate
	}

	if err := l.db.InsertMessage(candidate); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := l.db.UpsertConversation(&store.Conversation{
		Phone:              candidate.ConversationID,
		LastMessageAt:      candidate.Timestamp,
		LastMessagePreview: truncate(candidate.Content, 100),
	}); err != nil {
		// The message itself is stored; a stale summary is tolerable.
		l.logger.Warn("failed to update conversation summary",
			zap.Error(err), zap.String("conversation", candidate.ConversationID))
	}

	l.live.Publish(candidate.ConversationID, candidate)
	return candidate, nil
}

// UpdateStatus applies a status transition to the message with the
// given id. Returns false when no such message exists. An unreachable
// transition (out-of-order or duplicate status event) is a silent
// no-op: the message was found, nothing changes.
func (l *Ledger) UpdateStatus(id string, to status.Status) (bool, error) {
	msg, err := l.db.GetMessage(id)
	if err != nil {
		return false, fmt.Errorf("find message: %w", err)
	}
	if msg == nil {
		return false, nil
	}
	return true, l.transition(msg, to)
}

func (l *Ledger) transition(msg *store.Message, to status.Status) error {
	lk := l.convLock(msg.ConversationID)
	lk.Lock()
	defer lk.Unlock()

	// Re-read under the lock; another writer may have advanced it.
	current, err := l.db.GetMessage(msg.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	if !status.CanTransition(current.Status, to) {
		l.logger.Debug("status transition ignored",
			zap.String("id", current.ID),
			zap.String("from", string(current.Status)),
			zap.String("to", string(to)))
		return nil
	}

	applied, err := l.db.SetMessageStatus(current.ID, current.Status, to)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !applied {
		return nil
	}

	current.Status = to
	l.live.Publish(current.ConversationID, current)
	return nil
}

// SetProviderID records the provider-assigned id on a stored message
// (sent ack on an outbound message).
func (l *Ledger) SetProviderID(id, providerMsgID string) error {
	return l.db.SetMessageProviderID(id, providerMsgID)
}

// Messages returns a conversation's messages in ascending
// (timestamp, id) order. afterTs is an exclusive lower bound in Unix
// milliseconds; 0 reads from the beginning.
func (l *Ledger) Messages(conversationID string, afterTs int64, limit int) ([]store.Message, error) {
	return l.db.ListMessages(conversationID, afterTs, limit)
}

// Conversations returns conversation summaries, most recent first.
func (l *Ledger) Conversations(limit, offset int) ([]store.Conversation, error) {
	return l.db.ListConversations(limit, offset)
}

// AddConversation upserts a conversation summary record (add-recipient
// user action).
func (l *Ledger) AddConversation(c *store.Conversation) error {
	if c.Phone == "" {
		return fmt.Errorf("add conversation: empty phone")
	}
	return l.db.UpsertConversation(c)
}

// Clear empties all ledger state. Administrative reset.
func (l *Ledger) Clear() error {
	return l.db.ClearMessages()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
