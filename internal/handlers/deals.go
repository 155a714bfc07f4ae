package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// GetDeal handles GET /api/deals/{matchID}: the match with its durable
// approval set.
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	match, err := h.db.GetMatch(r.Context(), matchID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get match")
		h.Error(w, http.StatusInternalServerError, "failed to get deal")
		return
	}
	if match == nil {
		h.Error(w, http.StatusNotFound, "deal not found")
		return
	}

	approvals, err := h.db.ListApprovals(r.Context(), matchID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list approvals")
		h.Error(w, http.StatusInternalServerError, "failed to get deal")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"match":     match,
		"approvals": approvals,
	})
}

// PostMessage handles POST /api/deals/{matchID}/messages. A proposal
// message moves the deal to proposed; plain negotiation opens or
// continues the negotiating phase.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	var req struct {
		Content       string         `json:"content"`
		MessageType   string         `json:"message_type"`
		Type          string         `json:"type"` // alias for message_type
		ProposedTerms map[string]any `json:"proposed_terms"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	msgType := req.MessageType
	if msgType == "" {
		msgType = req.Type
	}

	msg, status, err := h.engine.RecordMessage(r.Context(), matchID, agentID, req.Content, models.MessageType(msgType), req.ProposedTerms)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.touchActivity(r, agentID)
	h.sampleResponseLatency(r.Context(), matchID, agentID, msg)
	h.JSON(w, http.StatusCreated, map[string]interface{}{
		"message": msg,
		"status":  status,
	})
}

// sampleResponseLatency measures how long the sender took to answer
// the counterpart's latest message. Best effort signal collection; it
// never affects the request outcome.
func (h *Handler) sampleResponseLatency(ctx context.Context, matchID, senderID uuid.UUID, sent *models.Message) {
	if h.redis == nil {
		return
	}

	messages, err := h.db.ListMessages(ctx, matchID, 0)
	if err != nil {
		return
	}

	var lastFromCounterpart *models.Message
	for i := range messages {
		m := &messages[i]
		if m.ID == sent.ID || m.SenderID == nil || *m.SenderID == senderID {
			continue
		}
		if !m.CreatedAt.After(sent.CreatedAt) {
			lastFromCounterpart = m
		}
	}
	if lastFromCounterpart == nil {
		return
	}

	latency := sent.CreatedAt.Sub(lastFromCounterpart.CreatedAt)
	if latency <= 0 {
		return
	}
	if err := h.redis.RecordResponseLatency(ctx, senderID, latency); err != nil {
		h.logger.Warn().Err(err).Str("agent_id", senderID.String()).Msg("failed to record response latency")
	}
}

// ListMessages handles GET /api/deals/{matchID}/messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	messages, err := h.db.ListMessages(r.Context(), matchID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list messages")
		h.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

// Approve handles POST /api/deals/{matchID}/approve. The deal
// finalizes only when both participants have durably approved; a
// rejection takes effect immediately.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	var req struct {
		Approved *bool `json:"approved"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.Approved == nil {
		h.Error(w, http.StatusBadRequest, "approved is required")
		return
	}

	decision, err := h.engine.RecordApproval(r.Context(), matchID, agentID, *req.Approved)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.touchActivity(r, agentID)
	h.JSON(w, http.StatusOK, map[string]string{"decision": string(decision)})
}

// StartDeal handles POST /api/deals/{matchID}/start.
func (h *Handler) StartDeal(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Start)
}

// CompleteDeal handles POST /api/deals/{matchID}/complete.
func (h *Handler) CompleteDeal(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Complete)
}

// CancelDeal handles POST /api/deals/{matchID}/cancel.
func (h *Handler) CancelDeal(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Cancel)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, uuid.UUID) (*models.Match, error)) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	match, err := op(r.Context(), matchID, agentID)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.touchActivity(r, agentID)
	h.JSON(w, http.StatusOK, match)
}
