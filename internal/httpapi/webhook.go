package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pentacloud/warelay/internal/wa"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// handleVerify responds to the provider's subscription verification:
// GET /api/webhook?hub.mode=subscribe&hub.verify_token=TOKEN&hub.challenge=CHALLENGE
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == s.wa.VerifyToken && challenge != "" {
		s.logger.Info("webhook verification successful")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	s.logger.Warn("webhook verification failed",
		zap.String("mode", mode),
		zap.Bool("token_match", token == s.wa.VerifyToken))
	http.Error(w, "verification failed", http.StatusForbidden)
}

// handleWebhook receives provider event deliveries. The response is
// 200 regardless of internal processing outcome: a non-2xx would make
// the provider retry and multiply duplicates.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn("webhook body read failed", zap.Error(err))
		s.ack(w)
		return
	}

	if s.wa.AppSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !s.validSignature(body, sig) {
			s.logger.Warn("webhook signature mismatch")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload wa.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Warn("malformed webhook payload", zap.Error(err))
		s.ack(w)
		return
	}

	s.pipeline.Process(r.Context(), &payload)
	s.ack(w)
}

func (s *Server) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "EVENT_RECEIVED")
}

// validSignature checks the X-Hub-Signature-256 HMAC.
func (s *Server) validSignature(body []byte, header string) bool {
	if header == "" {
		return false
	}
	sig := strings.TrimPrefix(header, "sha256=")
	mac := hmac.New(sha256.New, []byte(s.wa.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
