package ledger

import "github.com/pentacloud/warelay/internal/store"

// DedupWindowMillis is the timestamp-proximity threshold under which two
// messages with identical content and contact count as one logical
// message. Covers provider webhook redelivery and the webhook+client
// echo double path, whose copies arrive with slightly different
// timestamps.
const DedupWindowMillis = 1000

// isDuplicate reports whether candidate matches an already-stored
// message. A provider message id is the stronger signal and decides
// alone when present; without one the content window heuristic applies.
func (l *Ledger) isDuplicate(candidate *store.Message) (bool, error) {
	if candidate.ProviderMsgID != "" {
		existing, err := l.db.GetMessageByProviderID(candidate.ConversationID, candidate.ProviderMsgID)
		if err != nil {
			return false, err
		}
		return existing != nil, nil
	}

	near, err := l.db.MessagesNear(candidate.ConversationID, candidate.Timestamp, DedupWindowMillis)
	if err != nil {
		return false, err
	}
	for _, m := range near {
		if m.Content == candidate.Content &&
			m.ContactPhone == candidate.ContactPhone &&
			absDiff(m.Timestamp, candidate.Timestamp) < DedupWindowMillis {
			return true, nil
		}
	}
	return false, nil
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
