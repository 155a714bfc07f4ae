package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dealmesh-protocol/dealmesh/internal/api/middleware"
	"github.com/dealmesh-protocol/dealmesh/internal/handlers"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

// NewRouter creates and configures the HTTP router. redisStore may be
// nil; rate limiting is then disabled and quality signals degrade.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, redisStore *store.RedisStore, limiterCfg middleware.RateLimiterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware first to capture all requests
	r.Use(middleware.Metrics)

	// Security middleware (order matters)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(32 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, limiterCfg)
		r.Use(limiter.Middleware)
	}

	// CORS - agents call from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.AgentHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus scraping
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	r.Route("/api", func(r chi.Router) {
		r.Post("/agents", h.RegisterAgent)
		r.Get("/agents/{agentID}", h.GetAgent)

		r.Post("/profiles", h.CreateProfile)
		r.Get("/profiles/{profileID}", h.GetProfile)
		r.Delete("/profiles/{profileID}", h.DeactivateProfile)

		r.Get("/matches/{profileID}", h.FindMatches)

		r.Route("/deals/{matchID}", func(r chi.Router) {
			r.Get("/", h.GetDeal)
			r.Post("/messages", h.PostMessage)
			r.Get("/messages", h.ListMessages)
			r.Post("/approve", h.Approve)
			r.Post("/start", h.StartDeal)
			r.Post("/complete", h.CompleteDeal)
			r.Post("/cancel", h.CancelDeal)
			r.Post("/milestones", h.CreateMilestone)
			r.Get("/milestones", h.ListMilestones)
			r.Post("/disputes", h.FileDispute)
			r.Get("/disputes", h.ListDisputes)
		})

		r.Patch("/milestones/{milestoneID}", h.UpdateMilestone)
		r.Post("/disputes/{disputeID}/resolve", h.ResolveDispute)

		r.Post("/webhooks", h.CreateWebhook)
		r.Get("/webhooks", h.ListWebhooks)
		r.Delete("/webhooks/{webhookID}", h.DeleteWebhook)
		r.Post("/webhooks/{webhookID}/enable", h.EnableWebhook)

		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications/{notificationID}/read", h.MarkNotificationRead)
	})

	return r
}
