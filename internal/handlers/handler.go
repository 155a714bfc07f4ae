package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealmesh-protocol/dealmesh/internal/api/middleware"
	"github.com/dealmesh-protocol/dealmesh/internal/deal"
	"github.com/dealmesh-protocol/dealmesh/internal/engine"
	"github.com/dealmesh-protocol/dealmesh/internal/matching"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	redis    *store.RedisStore
	resolver *matching.Resolver
	engine   *deal.Engine
	logger   zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(db store.DataStore, redis *store.RedisStore, resolver *matching.Resolver, dealEngine *deal.Engine, logger zerolog.Logger) *Handler {
	return &Handler{db: db, redis: redis, resolver: resolver, engine: dealEngine, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// EngineError maps a domain error onto an HTTP status.
func (h *Handler) EngineError(w http.ResponseWriter, err error) {
	switch engine.KindOf(err) {
	case engine.KindValidation:
		h.Error(w, http.StatusBadRequest, err.Error())
	case engine.KindUnauthorized:
		h.Error(w, http.StatusForbidden, err.Error())
	case engine.KindNotFound:
		h.Error(w, http.StatusNotFound, err.Error())
	case engine.KindConflict:
		h.Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON request body into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// pathUUID parses a UUID URL parameter.
func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// actingAgent resolves the calling agent from the request header.
func (h *Handler) actingAgent(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(middleware.AgentHeader)
	if raw == "" {
		h.Error(w, http.StatusBadRequest, "missing "+middleware.AgentHeader+" header")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid "+middleware.AgentHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}

// touchActivity records the agent as active today. Best effort; a
// signal miss never fails the request.
func (h *Handler) touchActivity(r *http.Request, agentID uuid.UUID) {
	if h.redis == nil {
		return
	}
	if err := h.redis.MarkActive(r.Context(), agentID); err != nil {
		h.logger.Warn().Err(err).Str("agent_id", agentID.String()).Msg("failed to record activity")
	}
}

// sanitizeName trims and limits name to 100 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
