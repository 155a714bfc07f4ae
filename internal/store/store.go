package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

var (
	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint (one non-superseded match per unordered profile pair).
	ErrDuplicate = errors.New("duplicate row")

	// ErrConflict is returned when a conditional status update matched
	// no row, meaning the expected source state no longer holds.
	ErrConflict = errors.New("state conflict")
)

// WebhookResult is the durable outcome of one delivery attempt.
type WebhookResult struct {
	FailureCount int
	Active       bool
}

// DataStore defines the interface for persistent storage of the
// matching and deal lifecycle engine. Both PostgresStore and
// SQLiteStore implement it. Lookups return (nil, nil) when the row
// does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Agent operations
	CreateAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	CountAgents(ctx context.Context) (int64, error)

	// Profile operations
	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	DeactivateProfile(ctx context.Context, id uuid.UUID) error
	// ListCandidateProfiles returns active, unexpired profiles on the
	// given side, excluding those owned by excludeAgent.
	ListCandidateProfiles(ctx context.Context, side models.Side, excludeAgent uuid.UUID) ([]models.Profile, error)
	CountActiveProfiles(ctx context.Context) (int64, error)

	// Match operations
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	// GetMatchByProfiles expects the pair in stable storage order.
	GetMatchByProfiles(ctx context.Context, profileA, profileB uuid.UUID) (*models.Match, error)
	// UpdateMatchStatus performs a conditional transition and returns
	// ErrConflict when the match is no longer in the from status.
	UpdateMatchStatus(ctx context.Context, id uuid.UUID, from, to models.MatchStatus) error
	CountMatchesByStatus(ctx context.Context) (map[models.MatchStatus]int64, error)
	// DealOutcomes returns the agent's completed and total resolved
	// (terminal) deal counts for the completion-rate signal.
	DealOutcomes(ctx context.Context, agentID uuid.UUID) (completed, resolved int64, err error)

	// Message operations. AppendMessage inserts the message and applies
	// the status transition in one transaction; nothing is written when
	// the conditional update fails.
	AppendMessage(ctx context.Context, msg *models.Message, from, to models.MatchStatus) error
	ListMessages(ctx context.Context, matchID uuid.UUID, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context) (int64, error)

	// Approval operations. Upsert keeps one row per (match, agent) with
	// the latest decision winning. UpsertApprovalWithStatus ties the
	// approval write to a conditional status transition in one
	// transaction; ErrConflict means nothing was written at all.
	UpsertApproval(ctx context.Context, a *models.Approval) error
	UpsertApprovalWithStatus(ctx context.Context, a *models.Approval, from, to models.MatchStatus) error
	ListApprovals(ctx context.Context, matchID uuid.UUID) ([]models.Approval, error)

	// Milestone operations
	CreateMilestone(ctx context.Context, m *models.Milestone) error
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	UpdateMilestone(ctx context.Context, m *models.Milestone) error
	ListMilestones(ctx context.Context, matchID uuid.UUID) ([]models.Milestone, error)

	// Dispute operations
	CreateDispute(ctx context.Context, d *models.Dispute) error
	GetDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ResolveDispute(ctx context.Context, d *models.Dispute) error
	ListDisputes(ctx context.Context, matchID uuid.UUID) ([]models.Dispute, error)

	// Notification operations
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, agentID uuid.UUID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID) error

	// Webhook operations
	CreateWebhook(ctx context.Context, w *models.Webhook) error
	GetWebhook(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	ListWebhooksForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Webhook, error)
	ListActiveWebhooks(ctx context.Context, agentID uuid.UUID) ([]models.Webhook, error)
	DeleteWebhook(ctx context.Context, id uuid.UUID) error
	SetWebhookActive(ctx context.Context, id uuid.UUID, active bool) error
	// RecordWebhookResult increments or resets the failure counter and
	// deactivates the webhook once the counter reaches the ceiling,
	// all in one transaction.
	RecordWebhookResult(ctx context.Context, id uuid.UUID, success bool) (*WebhookResult, error)
}

// FailureCeiling is the consecutive-failure count at which a webhook is
// auto-disabled.
const FailureCeiling = 5
