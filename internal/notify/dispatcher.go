package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealmesh-protocol/dealmesh/internal/metrics"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

// deliveryBudget bounds one webhook delivery end to end: the HTTP
// attempt plus recording its outcome. Each delivery gets its own
// budget; a stalled subscriber burns only its own.
const deliveryBudget = 30 * time.Second

// Dispatcher persists notifications synchronously and fans them out to
// webhook subscribers from a background worker pool. Delivery is
// fire-and-forget: a caller never waits on, or learns about, webhook
// outcomes.
type Dispatcher struct {
	store   store.DataStore
	sender  *Sender
	logger  zerolog.Logger
	queue   chan *models.Notification
	workers int
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with a bounded delivery queue.
func NewDispatcher(ds store.DataStore, sender *Sender, queueSize, workers int, logger zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		store:   ds,
		sender:  sender,
		logger:  logger,
		queue:   make(chan *models.Notification, queueSize),
		workers: workers,
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop drains the queue and waits for in-flight deliveries. Dispatch
// must not be called after Stop.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

// Dispatch persists the notification and enqueues its webhook fan-out.
// Persistence failures are logged, never surfaced: a failed
// notification must not fail the state change that triggered it. When
// the queue is saturated the fan-out is dropped, not blocked on.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) {
	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.logger.Error().Err(err).
			Str("agent_id", n.AgentID.String()).
			Str("type", n.Type).
			Msg("failed to persist notification")
		return
	}
	metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()

	select {
	case d.queue <- n:
	default:
		metrics.DispatchQueueDropped.Inc()
		d.logger.Warn().
			Str("type", n.Type).
			Msg("dispatch queue full, webhook fan-out dropped")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.fanOut(n)
	}
}

// fanOut delivers one notification to every subscribed active webhook.
// Each webhook is delivered on its own goroutine with its own timeout,
// so one subscriber's slow or failing endpoint cannot delay another's
// delivery or eat into its budget.
func (d *Dispatcher) fanOut(n *models.Notification) {
	lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	hooks, err := d.store.ListActiveWebhooks(lookupCtx, n.AgentID)
	cancel()
	if err != nil {
		d.logger.Error().Err(err).
			Str("agent_id", n.AgentID.String()).
			Msg("failed to list webhooks")
		return
	}

	payload := NewPayload(n)
	var wg sync.WaitGroup
	for i := range hooks {
		hook := &hooks[i]
		if !hook.Subscribed(n.Type) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), deliveryBudget)
			defer cancel()
			d.deliver(ctx, hook, payload)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, hook *models.Webhook, payload Payload) {
	start := time.Now()
	err := d.sender.Deliver(ctx, hook, payload)
	metrics.WebhookDeliveryDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
		d.logger.Warn().Err(err).
			Str("webhook_id", hook.ID.String()).
			Str("event", payload.Event).
			Msg("webhook delivery failed")
	}
	metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()

	result, rerr := d.store.RecordWebhookResult(ctx, hook.ID, err == nil)
	if rerr != nil {
		d.logger.Error().Err(rerr).
			Str("webhook_id", hook.ID.String()).
			Msg("failed to record webhook result")
		return
	}
	if result != nil && !result.Active && hook.Active {
		metrics.WebhooksDisabled.Inc()
		d.logger.Warn().
			Str("webhook_id", hook.ID.String()).
			Int("failures", result.FailureCount).
			Msg("webhook disabled after repeated failures")
	}
}
