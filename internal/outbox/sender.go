package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pentacloud/warelay/internal/ledger"
	"github.com/pentacloud/warelay/internal/status"
	"github.com/pentacloud/warelay/internal/store"
	"github.com/pentacloud/warelay/internal/wa"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// TextSender is the external provider send contract.
type TextSender interface {
	SendText(ctx context.Context, to, body string) (providerMsgID string, err error)
}

// Tracker records outbound messages optimistically and drains the send
// outbox in the background. Send never blocks on the network call: the
// PENDING record is visible (and published live) before the provider is
// contacted.
type Tracker struct {
	db     *store.DB
	ledger *ledger.Ledger
	sender TextSender
	logger *zap.Logger
	wake   chan struct{}
	cancel context.CancelFunc
}

// NewTracker creates an outbound send tracker.
func NewTracker(db *store.DB, l *ledger.Ledger, sender TextSender, logger *zap.Logger) *Tracker {
	return &Tracker{
		db:     db,
		ledger: l,
		sender: sender,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Send appends a PENDING message for the conversation and queues the
// outbound delivery. Returns the stored message; ledger.ErrDuplicate
// when the duplicate check rejects it.
func (t *Tracker) Send(conversationID, text string) (*store.Message, error) {
	phone := wa.NormalizePhone(conversationID)
	if phone == "" {
		return nil, fmt.Errorf("send: empty conversation id")
	}
	if text == "" {
		return nil, fmt.Errorf("send: empty message text")
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: phone,
		Content:        text,
		Sender:         store.SenderUser,
		Status:         status.Pending,
		Timestamp:      time.Now().UnixMilli(),
		RecipientID:    phone,
		ContactPhone:   phone,
	}

	stored, err := t.ledger.Append(msg)
	if err != nil {
		return nil, err
	}

	if err := t.db.QueueOutbox(msg.ID, phone, text); err != nil {
		return nil, fmt.Errorf("queue outbox: %w", err)
	}

	// Nudge the drain loop so the send starts without waiting a tick.
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return stored, nil
}

// Start begins draining the outbox. Also picks up rows left queued by a
// previous run.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.loop(ctx)
}

// Stop stops the drain loop.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tracker) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.wake:
			t.processPending(ctx)
		case <-ticker.C:
			t.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tracker) processPending(ctx context.Context) {
	pending, err := t.db.PendingOutbox()
	if err != nil {
		t.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		t.deliver(ctx, entry)
	}
}

func (t *Tracker) deliver(ctx context.Context, entry store.OutboxEntry) {
	if err := t.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		t.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	providerMsgID, err := t.sender.SendText(sendCtx, entry.ConversationID, entry.Body)
	cancel()

	if err != nil {
		t.logger.Error("failed to send message",
			zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		_ = t.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
		if _, err := t.ledger.UpdateStatus(entry.ClientMsgID, status.Failed); err != nil {
			t.logger.Error("failed to mark message failed", zap.Error(err))
		}
		return
	}

	if err := t.db.MarkOutboxSent(entry.ClientMsgID, providerMsgID); err != nil {
		t.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	if err := t.ledger.SetProviderID(entry.ClientMsgID, providerMsgID); err != nil {
		t.logger.Error("failed to record provider id", zap.Error(err))
	}
	if _, err := t.ledger.UpdateStatus(entry.ClientMsgID, status.Sent); err != nil {
		t.logger.Error("failed to mark message sent", zap.Error(err))
	}

	t.logger.Info("message sent",
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.String("provider_msg_id", providerMsgID))
}
