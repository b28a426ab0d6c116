package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const streamBuffer = 64

// handleStream serves the live update channel over Server-Sent Events:
// GET /api/messages/stream?phoneNumber=...
// Best-effort: a client that needs history must poll /api/messages.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conv := conversationKey(r)
	if conv == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber or conversationId is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, unsub := s.live.SubscribeChan(conv, streamBuffer)
	defer unsub()

	// The comment frame doubles as a subscription-active signal.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case msg := <-ch:
			data, err := json.Marshal(toDTO(msg))
			if err != nil {
				s.logger.Error("marshal stream event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	// The daemon fronts a single-operator UI; cross-origin browsers are
	// not a trust boundary here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS serves the same live channel over a websocket:
// GET /api/ws?phoneNumber=...
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conv := conversationKey(r)
	if conv == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber or conversationId is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ch, unsub := s.live.SubscribeChan(conv, streamBuffer)
	defer unsub()

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-ch:
			if err := conn.WriteJSON(toDTO(msg)); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
