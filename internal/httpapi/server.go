// Package httpapi is the daemon's HTTP surface: the provider webhook,
// message read/store/status endpoints, outbound sends and the live
// update streams.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pentacloud/warelay/internal/config"
	"github.com/pentacloud/warelay/internal/ingest"
	"github.com/pentacloud/warelay/internal/ledger"
	"github.com/pentacloud/warelay/internal/live"
	"github.com/pentacloud/warelay/internal/outbox"
	"go.uber.org/zap"
)

// Server hosts the HTTP API.
type Server struct {
	addr     string
	wa       config.WhatsApp
	ledger   *ledger.Ledger
	pipeline *ingest.Pipeline
	tracker  *outbox.Tracker
	live     *live.Channel
	logger   *zap.Logger
	srv      *http.Server
}

// NewServer creates the HTTP server. Transitive components arrive
// pre-wired: the server only routes.
func NewServer(addr string, wa config.WhatsApp, l *ledger.Ledger, p *ingest.Pipeline, tr *outbox.Tracker, lv *live.Channel, logger *zap.Logger) *Server {
	s := &Server{
		addr:     addr,
		wa:       wa,
		ledger:   l,
		pipeline: p,
		tracker:  tr,
		live:     lv,
		logger:   logger,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/webhook", s.handleVerify).Methods(http.MethodGet)
	r.HandleFunc("/api/webhook", s.handleWebhook).Methods(http.MethodPost)

	r.HandleFunc("/api/messages/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/status", s.handleUpdateStatus).Methods(http.MethodPut)
	r.HandleFunc("/api/messages", s.handleListMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/messages", s.handleStoreMessage).Methods(http.MethodPost)

	r.HandleFunc("/api/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/api/send", s.handleSend).Methods(http.MethodPost)

	r.HandleFunc("/api/conversations", s.handleListConversations).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations", s.handleAddConversation).Methods(http.MethodPost)

	r.HandleFunc("/api/admin/messages", s.handleClear).Methods(http.MethodDelete)

	return r
}

// Start begins serving. Blocks until the server is stopped or hits a
// fatal listener error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown error", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
