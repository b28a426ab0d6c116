package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStreamSSE(t *testing.T) {
	f := newFixture(t, "")

	resp, err := http.Get(f.api.URL + "/api/messages/stream?phoneNumber=%2B1555")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, ":") {
		t.Fatalf("expected comment frame, got %q", line)
	}

	// Subscription is active once the comment frame arrives.
	seedMessage(t, f, "s1", "+1555", "streamed", 1000)

	var data string
	deadline := time.Now().Add(2 * time.Second)
	for data == "" {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for event")
		}
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var dto messageDTO
	if err := json.Unmarshal([]byte(data), &dto); err != nil {
		t.Fatal(err)
	}
	if dto.ID != "s1" || dto.Content != "streamed" {
		t.Errorf("event = %+v", dto)
	}
}

func TestStreamRequiresConversation(t *testing.T) {
	f := newFixture(t, "")
	if code, _ := f.get(t, "/api/messages/stream"); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestWebsocketStream(t *testing.T) {
	f := newFixture(t, "")

	wsURL := "ws" + strings.TrimPrefix(f.api.URL, "http") + "/api/ws?phoneNumber=%2B1555"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()

	// The subscription registers just after the upgrade completes.
	time.Sleep(50 * time.Millisecond)
	seedMessage(t, f, "w1", "+1555", "over the wire", 1000)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var dto messageDTO
	if err := conn.ReadJSON(&dto); err != nil {
		t.Fatal(err)
	}
	if dto.ID != "w1" || dto.Content != "over the wire" {
		t.Errorf("event = %+v", dto)
	}
}

func TestWebsocketRequiresConversation(t *testing.T) {
	f := newFixture(t, "")

	wsURL := "ws" + strings.TrimPrefix(f.api.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp != nil {
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		_ = resp.Body.Close()
	}
}
