package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pentacloud/warelay/internal/store"
	"github.com/pentacloud/warelay/internal/wa"
	"go.uber.org/zap"
)

type conversationDTO struct {
	PhoneNumber        string `json:"phoneNumber"`
	Name               string `json:"name,omitempty"`
	Avatar             string `json:"avatar,omitempty"`
	LastSeen           string `json:"lastSeen,omitempty"`
	LastMessageAt      string `json:"lastMessageAt,omitempty"`
	LastMessagePreview string `json:"lastMessagePreview,omitempty"`
}

func toConversationDTO(c *store.Conversation) conversationDTO {
	dto := conversationDTO{
		PhoneNumber:        c.Phone,
		Name:               c.Name,
		Avatar:             c.Avatar,
		LastMessagePreview: c.LastMessagePreview,
	}
	if c.LastSeen > 0 {
		dto.LastSeen = time.UnixMilli(c.LastSeen).UTC().Format(time.RFC3339)
	}
	if c.LastMessageAt > 0 {
		dto.LastMessageAt = time.UnixMilli(c.LastMessageAt).UTC().Format(time.RFC3339)
	}
	return dto
}

// handleListConversations returns conversation summaries, most recent
// first: GET /api/conversations?limit=&offset=
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	convs, err := s.ledger.Conversations(limit, offset)
	if err != nil {
		s.logger.Error("list conversations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read conversations")
		return
	}

	dtos := make([]conversationDTO, 0, len(convs))
	for i := range convs {
		dtos = append(dtos, toConversationDTO(&convs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"conversations": dtos,
		"count":         len(dtos),
	})
}

type addConversationRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
}

// handleAddConversation upserts a conversation entry (add recipient):
// POST /api/conversations {phoneNumber, name?, avatar?}
func (s *Server) handleAddConversation(w http.ResponseWriter, r *http.Request) {
	var req addConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	phone := wa.NormalizePhone(req.PhoneNumber)
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber is required")
		return
	}

	c := &store.Conversation{Phone: phone, Name: req.Name, Avatar: req.Avatar}
	if err := s.ledger.AddConversation(c); err != nil {
		s.logger.Error("add conversation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add conversation")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"conversation": toConversationDTO(c),
	})
}
