package handlers

import (
	"net/http"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// RegisterAgent handles POST /api/agents.
func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	agent := &models.Agent{Name: name}
	if err := h.db.CreateAgent(r.Context(), agent); err != nil {
		h.logger.Error().Err(err).Msg("failed to create agent")
		h.Error(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	h.logger.Info().Str("agent_id", agent.ID.String()).Str("name", agent.Name).Msg("agent registered")
	h.JSON(w, http.StatusCreated, agent)
}

// GetAgent handles GET /api/agents/{agentID}.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "agentID")
	if !ok {
		return
	}

	agent, err := h.db.GetAgent(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get agent")
		h.Error(w, http.StatusInternalServerError, "failed to get agent")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	h.JSON(w, http.StatusOK, agent)
}
