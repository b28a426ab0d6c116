package wa

import (
	"testing"
	"time"

	"github.com/pentacloud/warelay/internal/status"
	"github.com/pentacloud/warelay/internal/store"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"+15551234567", "+15551234567"},
		{"555.123.4567 ext", "+5551234567"},
		{"1+555", "+1555"},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureValidTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want time.Time
	}{
		{"unix seconds number", int64(1700000000), want},
		{"unix millis number", int64(1700000000000), want},
		{"unix seconds string", "1700000000", want},
		{"unix millis string", "1700000000000", want},
		{"rfc3339", "2023-11-14T22:13:20Z", want},
		{"nil falls back to now", nil, now},
		{"empty string falls back to now", "", now},
		{"garbage falls back to now", "not a date", now},
		{"float64 seconds", float64(1700000000), want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnsureValidTime(tt.in, now)
			if !got.Equal(tt.want) {
				t.Errorf("EnsureValidTime(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestSecondsAndMillisAgree is the core normalization property: the same
// instant encoded both ways lands on the same UTC time.
func TestSecondsAndMillisAgree(t *testing.T) {
	now := time.Now()
	s := EnsureValidTime(int64(1700000000), now)
	ms := EnsureValidTime(int64(1700000000000), now)
	if !s.Equal(ms) {
		t.Errorf("seconds %v != millis %v", s, ms)
	}
}

func TestNormalizeTextMessage(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{
		From:      "15551234567",
		ID:        "wamid.ABC",
		Timestamp: "1700000000",
		Type:      "text",
		Text:      &TextContent{Body: "hi"},
	}

	got := Normalize(msg, "15551234567", now)

	if got.ConversationID != "+15551234567" {
		t.Errorf("conversation = %q", got.ConversationID)
	}
	if got.Content != "hi" {
		t.Errorf("content = %q, want hi", got.Content)
	}
	if got.Sender != store.SenderContact {
		t.Errorf("sender = %q, want contact", got.Sender)
	}
	if got.Status != status.Delivered {
		t.Errorf("status = %s, want DELIVERED", got.Status)
	}
	if got.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", got.Timestamp)
	}
	if got.ProviderMsgID != "wamid.ABC" {
		t.Errorf("provider id = %q", got.ProviderMsgID)
	}
	wantID := "1717243200000-wamid.ABC"
	if got.ID != wantID {
		t.Errorf("id = %q, want %q", got.ID, wantID)
	}
}

func TestNormalizeNonTextContent(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"document with filename", Message{Type: "document", Document: &DocumentContent{Filename: "report.pdf"}}, "Sent attachment: report.pdf"},
		{"document without filename", Message{Type: "document", Document: &DocumentContent{}}, "[document]"},
		{"image without caption", Message{Type: "image", Image: &MediaContent{}}, "[image]"},
		{"image with caption", Message{Type: "image", Image: &MediaContent{Caption: "look"}}, "look"},
		{"audio", Message{Type: "audio", Audio: &MediaContent{}}, "[audio]"},
		{"unknown type", Message{Type: "reaction"}, "[reaction]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(&tt.msg, "1555", now)
			if got.Content != tt.want {
				t.Errorf("content = %q, want %q", got.Content, tt.want)
			}
		})
	}
}

func TestNormalizeMissingID(t *testing.T) {
	now := time.UnixMilli(5000).UTC()
	got := Normalize(&Message{Type: "text", Text: &TextContent{Body: "x"}}, "1555", now)
	if got.ID != "5000-generated" {
		t.Errorf("id = %q, want 5000-generated", got.ID)
	}
	if got.ProviderMsgID != "" {
		t.Errorf("provider id = %q, want empty", got.ProviderMsgID)
	}
	// Missing timestamp falls back to now.
	if got.Timestamp != now.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", got.Timestamp, now.UnixMilli())
	}
}
