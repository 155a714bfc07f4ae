package handlers

import (
	"net/http"
	"net/url"

	"github.com/dealmesh-protocol/dealmesh/internal/crypto"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// CreateWebhook handles POST /api/webhooks. The generated secret is
// returned exactly once, in this response.
func (h *Handler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}

	var req struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		h.Error(w, http.StatusBadRequest, "url must be a valid http(s) URL")
		return
	}

	hook := &models.Webhook{
		AgentID: agentID,
		URL:     req.URL,
		Secret:  crypto.NewSecret(),
		Events:  req.Events,
	}
	if err := h.db.CreateWebhook(r.Context(), hook); err != nil {
		h.logger.Error().Err(err).Msg("failed to create webhook")
		h.Error(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	h.JSON(w, http.StatusCreated, map[string]interface{}{
		"webhook": hook,
		"secret":  hook.Secret,
	})
}

// ListWebhooks handles GET /api/webhooks for the acting agent.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return
	}

	hooks, err := h.db.ListWebhooksForAgent(r.Context(), agentID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list webhooks")
		h.Error(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"webhooks": hooks,
		"count":    len(hooks),
	})
}

// loadOwnWebhook fetches a webhook and verifies ownership.
func (h *Handler) loadOwnWebhook(w http.ResponseWriter, r *http.Request) (*models.Webhook, bool) {
	agentID, ok := h.actingAgent(w, r)
	if !ok {
		return nil, false
	}
	id, ok := h.pathUUID(w, r, "webhookID")
	if !ok {
		return nil, false
	}

	hook, err := h.db.GetWebhook(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get webhook")
		h.Error(w, http.StatusInternalServerError, "failed to get webhook")
		return nil, false
	}
	if hook == nil {
		h.Error(w, http.StatusNotFound, "webhook not found")
		return nil, false
	}
	if hook.AgentID != agentID {
		h.Error(w, http.StatusForbidden, "webhook belongs to another agent")
		return nil, false
	}
	return hook, true
}

// DeleteWebhook handles DELETE /api/webhooks/{webhookID}.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	hook, ok := h.loadOwnWebhook(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteWebhook(r.Context(), hook.ID); err != nil {
		h.logger.Error().Err(err).Msg("failed to delete webhook")
		h.Error(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// EnableWebhook handles POST /api/webhooks/{webhookID}/enable:
// re-activates a webhook disabled by delivery failures and resets its
// failure count.
func (h *Handler) EnableWebhook(w http.ResponseWriter, r *http.Request) {
	hook, ok := h.loadOwnWebhook(w, r)
	if !ok {
		return
	}

	if err := h.db.SetWebhookActive(r.Context(), hook.ID, true); err != nil {
		h.logger.Error().Err(err).Msg("failed to enable webhook")
		h.Error(w, http.StatusInternalServerError, "failed to enable webhook")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}
