package status

import "slices"

// Status represents a message delivery status.
type Status string

const (
	Queued    Status = "QUEUED"
	Pending   Status = "PENDING"
	Sent      Status = "SENT"
	Delivered Status = "DELIVERED"
	Read      Status = "READ"
	Failed    Status = "FAILED"
)

// validTransitions defines the allowed delivery lifecycle edges.
// READ and FAILED are terminal; a failed message is superseded by a
// new message on resend, never mutated back to success.
var validTransitions = map[Status][]Status{
	Queued:    {Pending, Sent, Failed},
	Pending:   {Sent, Failed},
	Sent:      {Delivered, Failed},
	Delivered: {Read},
	Read:      {},
	Failed:    {},
}

// Valid reports whether s is a known status.
func Valid(s Status) bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether to is reachable from from, directly or
// through intermediate states. Providers redeliver status webhooks
// at-least-once and out of order, so a lost intermediate event (e.g.
// SENT -> READ with no DELIVERED seen) must still apply, while a
// regression (READ -> DELIVERED) must not.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	return reachable(from, to, nil)
}

func reachable(from, to Status, seen []Status) bool {
	if slices.Contains(seen, from) {
		return false
	}
	seen = append(seen, from)
	for _, next := range validTransitions[from] {
		if next == to || reachable(next, to, seen) {
			return true
		}
	}
	return false
}

// FromProvider maps a provider status string (sent, delivered, read,
// failed) to a Status. Returns false for unknown values.
func FromProvider(s string) (Status, bool) {
	switch s {
	case "sent":
		return Sent, true
	case "delivered":
		return Delivered, true
	case "read":
		return Read, true
	case "failed":
		return Failed, true
	}
	return "", false
}
