package handlers

import (
	"net/http"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// matchResult is one ranked match enriched with counterpart identity.
type matchResult struct {
	models.Match
	CounterpartID         string  `json:"counterpart_id"`
	CounterpartReputation float64 `json:"counterpart_reputation"`
}

// FindMatches handles GET /api/matches/{profileID}: score the profile
// against the opposite side and return its matches, best first, each
// with the counterpart's reputation. The call is idempotent;
// re-running it returns the same match records.
func (h *Handler) FindMatches(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.pathUUID(w, r, "profileID")
	if !ok {
		return
	}

	profile, err := h.db.GetProfile(r.Context(), profileID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	matches, err := h.resolver.FindMatches(r.Context(), profileID)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	results := make([]matchResult, 0, len(matches))
	for _, match := range matches {
		result := matchResult{Match: match}
		if profile != nil {
			counterpart := match.Counterpart(profile.AgentID)
			result.CounterpartID = counterpart.String()
			if agent, err := h.db.GetAgent(r.Context(), counterpart); err == nil && agent != nil {
				result.CounterpartReputation = agent.Reputation
			}
		}
		results = append(results, result)
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"matches": results,
		"count":   len(results),
	})
}
