package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

const maxSkills = 30

// CreateProfile handles POST /api/profiles.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}

	var req struct {
		Side      string     `json:"side"`
		Category  string     `json:"category"`
		Skills    []string   `json:"skills"`
		RateMin   *float64   `json:"rate_min"`
		RateMax   *float64   `json:"rate_max"`
		Currency  string     `json:"currency"`
		Remote    string     `json:"remote"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	side := models.Side(strings.ToLower(req.Side))
	if !side.Valid() {
		h.Error(w, http.StatusBadRequest, "side must be offering or seeking")
		return
	}
	remote := models.RemotePref(strings.ToLower(req.Remote))
	if !remote.Valid() {
		h.Error(w, http.StatusBadRequest, "remote must be remote, onsite or hybrid")
		return
	}
	if req.Category == "" {
		h.Error(w, http.StatusBadRequest, "category is required")
		return
	}
	if len(req.Skills) > maxSkills {
		h.Error(w, http.StatusBadRequest, "too many skills")
		return
	}
	if req.RateMin != nil && *req.RateMin < 0 {
		h.Error(w, http.StatusBadRequest, "rate_min must not be negative")
		return
	}
	if req.RateMin != nil && req.RateMax != nil && *req.RateMin > *req.RateMax {
		h.Error(w, http.StatusBadRequest, "rate_min must not exceed rate_max")
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		h.Error(w, http.StatusBadRequest, "expires_at must be in the future")
		return
	}

	agent, err := h.db.GetAgent(r.Context(), agentID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get agent")
		h.Error(w, http.StatusInternalServerError, "failed to create profile")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	skills := make([]string, 0, len(req.Skills))
	for _, skill := range req.Skills {
		if s := sanitizeName(skill); s != "" {
			skills = append(skills, s)
		}
	}

	profile := &models.Profile{
		AgentID:   agentID,
		Side:      side,
		Category:  sanitizeName(req.Category),
		Skills:    skills,
		RateMin:   req.RateMin,
		RateMax:   req.RateMax,
		Currency:  strings.ToUpper(sanitizeName(req.Currency)),
		Remote:    remote,
		Active:    true,
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.db.CreateProfile(r.Context(), profile); err != nil {
		h.logger.Error().Err(err).Msg("failed to create profile")
		h.Error(w, http.StatusInternalServerError, "failed to create profile")
		return
	}

	h.touchActivity(r, agentID)
	h.JSON(w, http.StatusCreated, profile)
}

// GetProfile handles GET /api/profiles/{profileID}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "profileID")
	if !ok {
		return
	}

	profile, err := h.db.GetProfile(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get profile")
		h.Error(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	if profile == nil {
		h.Error(w, http.StatusNotFound, "profile not found")
		return
	}

	h.JSON(w, http.StatusOK, profile)
}

// DeactivateProfile handles DELETE /api/profiles/{profileID}. Profiles
// are soft-deleted; existing matches keep referring to them.
func (h *Handler) DeactivateProfile(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "profileID")
	if !ok {
		return
	}

	profile, err := h.db.GetProfile(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get profile")
		h.Error(w, http.StatusInternalServerError, "failed to deactivate profile")
		return
	}
	if profile == nil {
		h.Error(w, http.StatusNotFound, "profile not found")
		return
	}
	if profile.AgentID != agentID {
		h.Error(w, http.StatusForbidden, "profile belongs to another agent")
		return
	}

	if err := h.db.DeactivateProfile(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Msg("failed to deactivate profile")
		h.Error(w, http.StatusInternalServerError, "failed to deactivate profile")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
