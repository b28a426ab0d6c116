package wa

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pentacloud/warelay/internal/status"
	"github.com/pentacloud/warelay/internal/store"
)

// msEpochThreshold separates Unix seconds from Unix milliseconds: any
// realistic seconds value stays below it (year ~2286) and any
// milliseconds value since 1970 lies above it.
const msEpochThreshold = 9_999_999_999

var digitsOnly = regexp.MustCompile(`^\d+$`)

// NormalizePhone strips every character except digits and prefixes a
// single '+'. Provider wa_id values arrive bare ("15551234567") while
// UI input usually carries the '+'; both canonicalize to "+15551234567"
// so they land in the same conversation. Empty input stays empty.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}

// EnsureValidTime canonicalizes an arbitrary timestamp encoding to an
// absolute UTC instant. Numeric values above msEpochThreshold are Unix
// milliseconds, below are Unix seconds; digit-only strings follow the
// same rule; other strings go through date parsing. Anything invalid
// or absent falls back to now.
func EnsureValidTime(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case nil:
		return now
	case time.Time:
		if t.IsZero() {
			return now
		}
		return t.UTC()
	case int64:
		return fromEpoch(t)
	case int:
		return fromEpoch(int64(t))
	case float64:
		return fromEpoch(int64(t))
	case string:
		if t == "" {
			return now
		}
		if digitsOnly.MatchString(t) {
			n, err := strconv.ParseInt(t, 10, 64)
			if err != nil {
				return now
			}
			return fromEpoch(n)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
		return now
	default:
		return now
	}
}

func fromEpoch(n int64) time.Time {
	if n > msEpochThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// Normalize converts a raw provider message into the canonical record.
// Inbound messages default to DELIVERED (the provider already delivered
// them here) with sender=contact. Pure function of its inputs.
func Normalize(msg *Message, phone string, now time.Time) *store.Message {
	normalized := NormalizePhone(phone)
	ts := EnsureValidTime(msg.Timestamp, now)

	pid := msg.ID
	idPart := pid
	if idPart == "" {
		idPart = "generated"
	}

	return &store.Message{
		ID:             fmt.Sprintf("%d-%s", now.UnixMilli(), idPart),
		ProviderMsgID:  pid,
		ConversationID: normalized,
		Content:        extractContent(msg),
		Sender:         store.SenderContact,
		Status:         status.Delivered,
		Timestamp:      ts.UnixMilli(),
		RecipientID:    normalized,
		ContactPhone:   normalized,
	}
}

// extractContent pulls the text body, or a descriptive placeholder for
// non-text types.
func extractContent(msg *Message) string {
	switch {
	case msg.Text != nil:
		return msg.Text.Body
	case msg.Image != nil:
		return captionOr(msg.Image.Caption, "[image]")
	case msg.Video != nil:
		return captionOr(msg.Video.Caption, "[video]")
	case msg.Audio != nil:
		return "[audio]"
	case msg.Sticker != nil:
		return "[sticker]"
	case msg.Document != nil:
		if msg.Document.Filename != "" {
			return "Sent attachment: " + msg.Document.Filename
		}
		return "[document]"
	default:
		return "[" + msg.Type + "]"
	}
}

func captionOr(caption, fallback string) string {
	if caption != "" {
		return caption
	}
	return fallback
}
