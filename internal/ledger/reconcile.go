package ledger

import (
	"fmt"

	"github.com/pentacloud/warelay/internal/status"
	"go.uber.org/zap"
)

// ApplyProviderStatus reconciles a provider delivery-status event
// (sent/delivered/read/failed) against the stored message carrying the
// given provider message id. Unknown ids and unreachable transitions
// are silent no-ops: providers redeliver status webhooks at-least-once
// and out of order. Returns whether a matching message was found.
func (l *Ledger) ApplyProviderStatus(providerMsgID, providerStatus string) (bool, error) {
	to, ok := status.FromProvider(providerStatus)
	if !ok {
		return false, fmt.Errorf("unknown provider status %q", providerStatus)
	}

	msg, err := l.db.GetMessageByProviderID("", providerMsgID)
	if err != nil {
		return false, fmt.Errorf("find by provider id: %w", err)
	}
	if msg == nil {
		l.logger.Debug("status event for unknown message",
			zap.String("provider_msg_id", providerMsgID),
			zap.String("status", providerStatus))
		return false, nil
	}

	return true, l.transition(msg, to)
}
