package handlers

import (
	"net/http"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// FileDispute handles POST /api/deals/{matchID}/disputes.
func (h *Handler) FileDispute(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	dispute, err := h.engine.FileDispute(r.Context(), matchID, agentID, req.Reason)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.touchActivity(r, agentID)
	h.JSON(w, http.StatusCreated, dispute)
}

// ListDisputes handles GET /api/deals/{matchID}/disputes.
func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	disputes, err := h.db.ListDisputes(r.Context(), matchID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list disputes")
		h.Error(w, http.StatusInternalServerError, "failed to list disputes")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"disputes": disputes,
		"count":    len(disputes),
	})
}

// ResolveDispute handles POST /api/disputes/{disputeID}/resolve.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	disputeID, ok := h.pathUUID(w, r, "disputeID")
	if !ok {
		return
	}

	var req struct {
		Status     string `json:"status"`
		Resolution string `json:"resolution"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	dispute, err := h.engine.ResolveDispute(r.Context(), disputeID, agentID, models.DisputeStatus(req.Status), req.Resolution)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.touchActivity(r, agentID)
	h.JSON(w, http.StatusOK, dispute)
}
