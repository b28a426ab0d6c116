package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pentacloud/warelay/internal/ledger"
	"github.com/pentacloud/warelay/internal/status"
	"github.com/pentacloud/warelay/internal/store"
	"github.com/pentacloud/warelay/internal/wa"
	"go.uber.org/zap"
)

const defaultListLimit = 20

// messageDTO is the wire shape of a Message. Timestamps are RFC3339 UTC.
type messageDTO struct {
	ID                 string `json:"id"`
	ProviderMessageID  string `json:"providerMessageId,omitempty"`
	ConversationID     string `json:"conversationId"`
	Content            string `json:"content"`
	Timestamp          string `json:"timestamp"`
	Sender             string `json:"sender"`
	Status             string `json:"status"`
	RecipientID        string `json:"recipientId"`
	ContactPhoneNumber string `json:"contactPhoneNumber"`
}

func toDTO(m *store.Message) messageDTO {
	return messageDTO{
		ID:                 m.ID,
		ProviderMessageID:  m.ProviderMsgID,
		ConversationID:     m.ConversationID,
		Content:            m.Content,
		Timestamp:          time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339),
		Sender:             m.Sender,
		Status:             string(m.Status),
		RecipientID:        m.RecipientID,
		ContactPhoneNumber: m.ContactPhone,
	}
}

// conversationKey resolves phoneNumber / conversationId query params to
// a normalized conversation id. Empty means neither was provided.
func conversationKey(r *http.Request) string {
	q := r.URL.Query()
	key := q.Get("phoneNumber")
	if key == "" {
		key = q.Get("conversationId")
	}
	return wa.NormalizePhone(key)
}

// handleListMessages serves incremental polling reads:
// GET /api/messages?phoneNumber=...&afterTimestamp=...&limit=...
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv := conversationKey(r)
	if conv == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber or conversationId is required")
		return
	}

	var afterTs int64
	if v := r.URL.Query().Get("afterTimestamp"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "afterTimestamp must be an RFC3339 instant")
			return
		}
		afterTs = ts.UnixMilli()
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.ledger.Messages(conv, afterTs, limit)
	if err != nil {
		s.logger.Error("list messages failed", zap.Error(err), zap.String("conversation", conv))
		writeError(w, http.StatusInternalServerError, "failed to read messages")
		return
	}

	dtos := make([]messageDTO, 0, len(msgs))
	for i := range msgs {
		dtos = append(dtos, toDTO(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": dtos,
		"count":    len(dtos),
	})
}

type storeMessageRequest struct {
	PhoneNumber string         `json:"phoneNumber"`
	Message     *storedMessage `json:"message"`
}

type storedMessage struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Text      *wa.TextContent `json:"text"`
	Timestamp any             `json:"timestamp"`
	From      string          `json:"from"`
	Status    string          `json:"status"`
}

// handleStoreMessage records an externally supplied message:
// POST /api/messages {phoneNumber, message}.
func (s *Server) handleStoreMessage(w http.ResponseWriter, r *http.Request) {
	var req storeMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PhoneNumber == "" || req.Message == nil {
		writeError(w, http.StatusBadRequest, "phoneNumber and message are required")
		return
	}

	content := req.Message.Content
	if content == "" && req.Message.Text != nil {
		content = req.Message.Text.Body
	}
	if content == "" {
		writeError(w, http.StatusBadRequest, "message has no content")
		return
	}

	phone := wa.NormalizePhone(req.PhoneNumber)
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber is not a valid phone number")
		return
	}

	now := time.Now()
	ts := wa.EnsureValidTime(req.Message.Timestamp, now)

	sender := store.SenderUser
	if req.Message.From != "" && wa.NormalizePhone(req.Message.From) == phone {
		sender = store.SenderContact
	}

	st := status.Delivered
	if req.Message.Status != "" {
		candidate := status.Status(req.Message.Status)
		if !status.Valid(candidate) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Message.Status))
			return
		}
		st = candidate
	}

	id := uuid.NewString()
	providerID := req.Message.ID
	if providerID != "" {
		id = fmt.Sprintf("%d-%s", now.UnixMilli(), providerID)
	}

	msg := &store.Message{
		ID:             id,
		ProviderMsgID:  providerID,
		ConversationID: phone,
		Content:        content,
		Sender:         sender,
		Status:         st,
		Timestamp:      ts.UnixMilli(),
		RecipientID:    phone,
		ContactPhone:   phone,
	}

	stored, err := s.ledger.Append(msg)
	if errors.Is(err, ledger.ErrDuplicate) {
		writeError(w, http.StatusConflict, "duplicate message")
		return
	}
	if err != nil {
		s.logger.Error("store message failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": toDTO(stored),
	})
}

type updateStatusRequest struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// handleUpdateStatus applies a status transition by message id:
// PUT /api/messages/status {messageId, status}.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "messageId is required")
		return
	}
	st := status.Status(req.Status)
	if !status.Valid(st) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	found, err := s.ledger.UpdateStatus(req.MessageID, st)
	if err != nil {
		s.logger.Error("update status failed", zap.Error(err), zap.String("id", req.MessageID))
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": found})
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// handleSend accepts a UI-originated outbound send:
// POST /api/send {phoneNumber, message}. The response carries the
// PENDING record; delivery continues in the background.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PhoneNumber == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber and message are required")
		return
	}

	msg, err := s.tracker.Send(req.PhoneNumber, req.Message)
	if errors.Is(err, ledger.ErrDuplicate) {
		writeError(w, http.StatusConflict, "duplicate message")
		return
	}
	if err != nil {
		s.logger.Error("send failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue message")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": toDTO(msg),
	})
}

// handleClear empties all ledger state. Administrative reset.
func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.ledger.Clear(); err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
