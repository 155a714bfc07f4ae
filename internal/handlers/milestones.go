package handlers

import (
	"net/http"
	"time"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// CreateMilestone handles POST /api/deals/{matchID}/milestones.
func (h *Handler) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	var req struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		DueDate     *time.Time `json:"due_date"`
		Position    int        `json:"position"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	milestone := &models.Milestone{
		Title:       sanitizeName(req.Title),
		Description: req.Description,
		DueDate:     req.DueDate,
		Position:    req.Position,
	}
	created, err := h.engine.CreateMilestone(r.Context(), matchID, agentID, milestone)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.touchActivity(r, agentID)
	h.JSON(w, http.StatusCreated, created)
}

// ListMilestones handles GET /api/deals/{matchID}/milestones.
func (h *Handler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	matchID, ok := h.pathUUID(w, r, "matchID")
	if !ok {
		return
	}

	milestones, err := h.db.ListMilestones(r.Context(), matchID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list milestones")
		h.Error(w, http.StatusInternalServerError, "failed to list milestones")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"milestones": milestones,
		"count":      len(milestones),
	})
}

// UpdateMilestone handles PATCH /api/milestones/{milestoneID}. Only
// the provided fields change.
func (h *Handler) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	milestoneID, ok := h.pathUUID(w, r, "milestoneID")
	if !ok {
		return
	}

	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		DueDate     *time.Time `json:"due_date"`
		Status      *string    `json:"status"`
		Position    *int       `json:"position"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.engine.UpdateMilestone(r.Context(), milestoneID, agentID, func(m *models.Milestone) error {
		if req.Title != nil {
			m.Title = sanitizeName(*req.Title)
		}
		if req.Description != nil {
			m.Description = *req.Description
		}
		if req.DueDate != nil {
			m.DueDate = req.DueDate
		}
		if req.Status != nil {
			m.Status = models.MilestoneStatus(*req.Status)
		}
		if req.Position != nil {
			m.Position = *req.Position
		}
		return nil
	})
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.touchActivity(r, agentID)
	h.JSON(w, http.StatusOK, updated)
}
