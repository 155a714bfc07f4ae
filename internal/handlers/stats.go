package handlers

import (
	"net/http"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalAgents    int64            `json:"total_agents"`
	ActiveProfiles int64            `json:"active_profiles"`
	TotalMessages  int64            `json:"total_messages"`
	DealsByStatus  map[string]int64 `json:"deals_by_status"`
}

// Stats returns platform statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalAgents, err := h.db.CountAgents(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count agents")
		return
	}

	activeProfiles, err := h.db.CountActiveProfiles(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count profiles")
		return
	}

	totalMessages, err := h.db.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	byStatus, err := h.db.CountMatchesByStatus(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count deals")
		return
	}
	deals := make(map[string]int64, len(byStatus))
	for status, count := range byStatus {
		deals[string(status)] = count
	}
	// Report zero explicitly for every lifecycle status
	for _, status := range []models.MatchStatus{
		models.StatusMatched, models.StatusNegotiating, models.StatusProposed,
		models.StatusApproved, models.StatusRejected, models.StatusInProgress,
		models.StatusCompleted, models.StatusExpired, models.StatusCancelled,
	} {
		if _, ok := deals[string(status)]; !ok {
			deals[string(status)] = 0
		}
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalAgents:    totalAgents,
		ActiveProfiles: activeProfiles,
		TotalMessages:  totalMessages,
		DealsByStatus:  deals,
	})
}
