package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pentacloud/warelay/internal/config"
	"github.com/pentacloud/warelay/internal/httpapi"
	"github.com/pentacloud/warelay/internal/ingest"
	"github.com/pentacloud/warelay/internal/ledger"
	"github.com/pentacloud/warelay/internal/live"
	"github.com/pentacloud/warelay/internal/lock"
	"github.com/pentacloud/warelay/internal/outbox"
	"github.com/pentacloud/warelay/internal/store"
	"github.com/pentacloud/warelay/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TestModuleGraph verifies the fx dependency graph resolves without
// executing any provider.
func TestModuleGraph(t *testing.T) {
	p := Params{ConfigPath: filepath.Join(t.TempDir(), "config.toml")}
	if err := fx.ValidateApp(Module(p)); err != nil {
		t.Fatalf("ValidateApp() = %v", err)
	}
}

const webhookEvent = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "100",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000000", "phone_number_id": "555"},
        "contacts": [{"profile": {"name": "Alice"}, "wa_id": "15551234567"}],
        "messages": [{
          "from": "15551234567",
          "id": "wamid.IN1",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "hello"}
        }]
      }
    }]
  }]
}`

func TestDaemonLifecycle(t *testing.T) {
	dir := t.TempDir()

	// Stub Graph API: every send succeeds with a fixed provider id.
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"messages":[{"id":"wamid.OUT1"}]}`)
	}))
	defer graph.Close()

	lk, err := lock.Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(dir, "warelay.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	lv := live.New()
	l := ledger.New(db, lv, logger)
	client := wa.NewClient("token", "555", graph.URL)
	pipeline := ingest.New(l, client, logger)
	tracker := outbox.NewTracker(db, l, client, logger)

	waCfg := config.WhatsApp{
		AccessToken:   "token",
		PhoneNumberID: "555",
		VerifyToken:   "secret-verify",
		APIBaseURL:    graph.URL,
	}
	srv := httpapi.NewServer(":0", waCfg, l, pipeline, tracker, lv, logger)
	api := httptest.NewServer(srv.Router())
	defer api.Close()

	tracker.Start(context.Background())
	defer tracker.Stop()

	// Webhook verification handshake.
	resp, err := http.Get(api.URL + "/api/webhook?hub.mode=subscribe&hub.verify_token=secret-verify&hub.challenge=1234")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, want 200", resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Inbound event delivery.
	resp, err = http.Post(api.URL+"/api/webhook", "application/json", bytes.NewBufferString(webhookEvent))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", resp.StatusCode)
	}
	_ = resp.Body.Close()

	msgs := listMessages(t, api.URL, "15551234567")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0]["content"] != "hello" || msgs[0]["sender"] != "contact" {
		t.Errorf("unexpected message: %+v", msgs[0])
	}

	// Outbound send: accepted immediately, delivered in background.
	body, _ := json.Marshal(map[string]string{"phoneNumber": "+15559998888", "message": "hi back"})
	resp, err = http.Post(api.URL+"/api/send", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send status = %d, want 202", resp.StatusCode)
	}
	_ = resp.Body.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		msgs = listMessages(t, api.URL, "+15559998888")
		if len(msgs) == 1 && msgs[0]["status"] == "SENT" {
			if msgs[0]["providerMessageId"] != "wamid.OUT1" {
				t.Errorf("providerMessageId = %v, want wamid.OUT1", msgs[0]["providerMessageId"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("send never reached SENT: %+v", msgs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func listMessages(t *testing.T, base, phone string) []map[string]any {
	t.Helper()
	resp, err := http.Get(base + "/api/messages?phoneNumber=" + phone)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Messages
}
