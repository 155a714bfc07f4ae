package notify

// Event types carried on notifications and webhook payloads. Webhook
// subscriptions filter on these, or on "*" for everything.
const (
	EventNewMatch            = "new_match"
	EventMessageReceived     = "message_received"
	EventDealProposed        = "deal_proposed"
	EventDealApproved        = "deal_approved"
	EventDealRejected        = "deal_rejected"
	EventDealStarted         = "deal_started"
	EventDealCompleted       = "deal_completed"
	EventDealExpired         = "deal_expired"
	EventDealCancelled       = "deal_cancelled"
	EventMilestoneCreated    = "milestone_created"
	EventMilestoneUpdated    = "milestone_updated"
	EventMilestonesCompleted = "milestones_completed"
	EventDisputeFiled        = "dispute_filed"
	EventDisputeResolved     = "dispute_resolved"
)
