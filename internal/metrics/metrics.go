package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealmesh_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealmesh_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MatchesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealmesh_matches_created_total",
			Help: "Total matches created by the resolver",
		},
	)

	DealTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealmesh_deal_transitions_total",
			Help: "Total accepted deal state transitions",
		},
		[]string{"to"},
	)

	IllegalTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealmesh_illegal_transitions_total",
			Help: "Total rejected deal transitions",
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealmesh_notifications_created_total",
			Help: "Total notifications persisted",
		},
		[]string{"type"},
	)

	// Webhook delivery metrics
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealmesh_webhook_deliveries_total",
			Help: "Total webhook delivery attempts",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	WebhookDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealmesh_webhook_delivery_duration_seconds",
			Help:    "Webhook delivery duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	WebhooksDisabled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealmesh_webhooks_disabled_total",
			Help: "Webhooks auto-disabled at the failure ceiling",
		},
	)

	DispatchQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealmesh_dispatch_queue_dropped_total",
			Help: "Deliveries dropped because the dispatch queue was full",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealmesh_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealmesh_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
