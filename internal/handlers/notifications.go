package handlers

import (
	"net/http"
	"strconv"
)

// ListNotifications handles GET /api/notifications for the acting
// agent, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	notifications, err := h.db.ListNotifications(r.Context(), agentID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list notifications")
		h.Error(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// MarkNotificationRead handles POST /api/notifications/{notificationID}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actingAgent(w, r); !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "notificationID")
	if !ok {
		return
	}

	if err := h.db.MarkNotificationRead(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Msg("failed to mark notification read")
		h.Error(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "read"})
}
