// Package ingest unwraps provider webhook envelopes and feeds each
// contained unit to the ledger. Internal failures never surface to the
// provider: a non-2xx response would trigger retry storms, and the
// duplicate check is the designed defense against redelivery.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/pentacloud/warelay/internal/ledger"
	"github.com/pentacloud/warelay/internal/store"
	"github.com/pentacloud/warelay/internal/wa"
	"go.uber.org/zap"
)

const markReadTimeout = 8 * time.Second

// ReadMarker reports inbound messages as read to the provider.
type ReadMarker interface {
	MarkRead(ctx context.Context, providerMsgID string) error
}

// Pipeline routes webhook envelope units into the ledger.
type Pipeline struct {
	ledger *ledger.Ledger
	marker ReadMarker // nil disables read receipts
	logger *zap.Logger
}

// New creates an ingestion pipeline.
func New(l *ledger.Ledger, marker ReadMarker, logger *zap.Logger) *Pipeline {
	return &Pipeline{ledger: l, marker: marker, logger: logger}
}

// Process walks one webhook payload: entries, changes, then the
// messages and statuses arrays. Every unit is handled independently so
// one bad message cannot block the rest of the batch.
func (p *Pipeline) Process(ctx context.Context, payload *wa.WebhookPayload) {
	if payload.Object != "whatsapp_business_account" {
		p.logger.Info("ignoring non-whatsapp webhook object", zap.String("object", payload.Object))
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			p.processValue(ctx, change.Value)
		}
	}
}

func (p *Pipeline) processValue(ctx context.Context, value wa.ChangeValue) {
	contactNames := make(map[string]string)
	for _, c := range value.Contacts {
		contactNames[c.WaID] = c.Profile.Name
	}

	for i := range value.Messages {
		p.ingestMessage(ctx, &value.Messages[i], contactNames)
	}

	for _, st := range value.Statuses {
		if _, err := p.ledger.ApplyProviderStatus(st.ID, st.Status); err != nil {
			p.logger.Error("failed to apply status event",
				zap.Error(err),
				zap.String("provider_msg_id", st.ID),
				zap.String("status", st.Status))
		}
	}
}

func (p *Pipeline) ingestMessage(ctx context.Context, raw *wa.Message, contactNames map[string]string) {
	msg := wa.Normalize(raw, raw.From, time.Now())

	stored, err := p.ledger.Append(msg)
	if errors.Is(err, ledger.ErrDuplicate) {
		p.logger.Debug("skipping redelivered message", zap.String("provider_msg_id", raw.ID))
		return
	}
	if err != nil {
		p.logger.Error("failed to ingest message",
			zap.Error(err), zap.String("provider_msg_id", raw.ID))
		return
	}

	if name := contactNames[raw.From]; name != "" {
		if err := p.ledger.AddConversation(&store.Conversation{Phone: stored.ConversationID, Name: name}); err != nil {
			p.logger.Warn("failed to record contact name", zap.Error(err))
		}
	}

	p.logger.Info("message ingested",
		zap.String("conversation", stored.ConversationID),
		zap.String("id", stored.ID))

	if p.marker != nil && raw.ID != "" {
		go p.markRead(raw.ID)
	}
}

// markRead is best-effort; the provider treats read receipts as UX
// sugar, not state.
func (p *Pipeline) markRead(providerMsgID string) {
	ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
	defer cancel()
	if err := p.marker.MarkRead(ctx, providerMsgID); err != nil {
		p.logger.Warn("failed to mark message read",
			zap.Error(err), zap.String("provider_msg_id", providerMsgID))
	}
}
