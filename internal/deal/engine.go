package deal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealmesh-protocol/dealmesh/internal/engine"
	"github.com/dealmesh-protocol/dealmesh/internal/metrics"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
	"github.com/dealmesh-protocol/dealmesh/internal/notify"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

// Notifier delivers lifecycle notifications; a nil Notifier silences
// them without changing engine behavior.
type Notifier interface {
	Dispatch(ctx context.Context, n *models.Notification)
}

// Decision is the outcome of recording one approval.
type Decision string

const (
	DecisionWaiting  Decision = "waiting"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Engine drives a match through the deal lifecycle. Every write
// verifies the acting agent is a participant, and every status change
// goes through the transition table; an illegal action is rejected
// without touching the match.
type Engine struct {
	store    store.DataStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewEngine creates a deal engine.
func NewEngine(ds store.DataStore, notifier Notifier, logger zerolog.Logger) *Engine {
	return &Engine{store: ds, notifier: notifier, logger: logger}
}

// loadForAgent fetches the match and verifies the actor participates.
func (e *Engine) loadForAgent(ctx context.Context, matchID, agentID uuid.UUID) (*models.Match, error) {
	match, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if match == nil {
		return nil, engine.NotFound("match %s not found", matchID)
	}
	if !match.Participant(agentID) {
		return nil, engine.Unauthorized("agent %s is not a participant in match %s", agentID, matchID)
	}
	return match, nil
}

// transition applies a conditional status update and records it.
func (e *Engine) transition(ctx context.Context, match *models.Match, action Action) (models.MatchStatus, error) {
	next, err := Next(match.Status, action)
	if err != nil {
		metrics.IllegalTransitions.Inc()
		return "", err
	}
	if next == match.Status {
		return next, nil
	}
	if err := e.store.UpdateMatchStatus(ctx, match.ID, match.Status, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.IllegalTransitions.Inc()
			return "", engine.Conflict("match %s changed status concurrently", match.ID)
		}
		return "", fmt.Errorf("update status: %w", err)
	}
	metrics.DealTransitions.WithLabelValues(string(next)).Inc()
	e.logger.Info().
		Str("match_id", match.ID.String()).
		Str("from", string(match.Status)).
		Str("to", string(next)).
		Msg("deal transition")
	return next, nil
}

// notifyBoth sends the same event to both participants, attributing it
// to the acting agent.
func (e *Engine) notifyBoth(ctx context.Context, match *models.Match, actor uuid.UUID, event, summary string) {
	if e.notifier == nil {
		return
	}
	for _, agent := range []uuid.UUID{match.AgentA, match.AgentB} {
		from := actor
		e.notifier.Dispatch(ctx, &models.Notification{
			AgentID:     agent,
			Type:        event,
			MatchID:     &match.ID,
			FromAgentID: &from,
			Summary:     summary,
		})
	}
}

// notifyCounterpart sends an event only to the acting agent's
// counterpart.
func (e *Engine) notifyCounterpart(ctx context.Context, match *models.Match, actor uuid.UUID, event, summary string) {
	if e.notifier == nil {
		return
	}
	from := actor
	e.notifier.Dispatch(ctx, &models.Notification{
		AgentID:     match.Counterpart(actor),
		Type:        event,
		MatchID:     &match.ID,
		FromAgentID: &from,
		Summary:     summary,
	})
}

// RecordMessage appends a negotiation or proposal message and applies
// the status change it implies, atomically. A proposal moves the deal
// to proposed; plain negotiation moves matched to negotiating and
// otherwise leaves the status alone. Returns the message and the
// status the deal ended up in.
func (e *Engine) RecordMessage(ctx context.Context, matchID, senderID uuid.UUID, content string, msgType models.MessageType, terms map[string]any) (*models.Message, models.MatchStatus, error) {
	if content == "" {
		return nil, "", engine.Validation("message content is required")
	}
	if msgType != models.MessageNegotiation && msgType != models.MessageProposal {
		return nil, "", engine.Validation("message_type must be %q or %q", models.MessageNegotiation, models.MessageProposal)
	}
	if msgType == models.MessageProposal && len(terms) == 0 {
		return nil, "", engine.Validation("a proposal requires proposed_terms")
	}

	match, err := e.loadForAgent(ctx, matchID, senderID)
	if err != nil {
		return nil, "", err
	}

	action := ActionNegotiate
	if msgType == models.MessageProposal {
		action = ActionPropose
	}
	next, err := Next(match.Status, action)
	if err != nil {
		metrics.IllegalTransitions.Inc()
		return nil, "", err
	}

	msg := &models.Message{
		MatchID:       matchID,
		SenderID:      &senderID,
		Content:       content,
		Type:          msgType,
		ProposedTerms: terms,
	}
	if err := e.store.AppendMessage(ctx, msg, match.Status, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", engine.Conflict("match %s changed status concurrently", matchID)
		}
		return nil, "", fmt.Errorf("append message: %w", err)
	}
	if next != match.Status {
		metrics.DealTransitions.WithLabelValues(string(next)).Inc()
	}

	if msgType == models.MessageProposal {
		e.notifyCounterpart(ctx, match, senderID, notify.EventDealProposed, "New deal proposal received")
	} else {
		e.notifyCounterpart(ctx, match, senderID, notify.EventMessageReceived, "New negotiation message")
	}
	return msg, next, nil
}

// RecordApproval records one participant's decision on a pending
// proposal. A rejection takes effect immediately; an approval finalizes
// the deal only once the durable approval set shows both participants
// approved. The both-approved check runs against post-write reads, and
// the final transition is conditional, so two racing approvers settle
// on exactly one approved outcome.
func (e *Engine) RecordApproval(ctx context.Context, matchID, agentID uuid.UUID, approved bool) (Decision, error) {
	match, err := e.loadForAgent(ctx, matchID, agentID)
	if err != nil {
		return "", err
	}
	if !CanAct(match.Status, ActionApprove) && !CanAct(match.Status, ActionReject) {
		metrics.IllegalTransitions.Inc()
		return "", engine.Conflict("cannot approve or reject a deal in status %q", match.Status)
	}

	approval := &models.Approval{MatchID: matchID, AgentID: agentID, Approved: approved}

	// A rejection and its transition commit together: a concurrent
	// status change rolls both back.
	if !approved {
		next, err := Next(match.Status, ActionReject)
		if err != nil {
			metrics.IllegalTransitions.Inc()
			return "", err
		}
		if err := e.store.UpsertApprovalWithStatus(ctx, approval, match.Status, next); err != nil {
			if errors.Is(err, store.ErrConflict) {
				metrics.IllegalTransitions.Inc()
				return "", engine.Conflict("match %s changed status concurrently", matchID)
			}
			return "", fmt.Errorf("record rejection: %w", err)
		}
		metrics.DealTransitions.WithLabelValues(string(next)).Inc()
		e.logger.Info().
			Str("match_id", matchID.String()).
			Str("from", string(match.Status)).
			Str("to", string(next)).
			Msg("deal transition")
		e.notifyBoth(ctx, match, agentID, notify.EventDealRejected, "Deal proposal rejected")
		return DecisionRejected, nil
	}

	// Approvals are recorded first and consensus is decided from the
	// durable set read after the write, so whichever request writes
	// second observes the other's row and performs the flip.
	if err := e.store.UpsertApproval(ctx, approval); err != nil {
		return "", fmt.Errorf("record approval: %w", err)
	}

	approvals, err := e.store.ListApprovals(ctx, matchID)
	if err != nil {
		return "", fmt.Errorf("list approvals: %w", err)
	}
	approvedBy := make(map[uuid.UUID]bool, len(approvals))
	for _, a := range approvals {
		if a.Approved {
			approvedBy[a.AgentID] = true
		}
	}
	if !approvedBy[match.AgentA] || !approvedBy[match.AgentB] {
		return DecisionWaiting, nil
	}

	if err := e.store.UpdateMatchStatus(ctx, matchID, models.StatusProposed, models.StatusApproved); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent approver may have finalized first; losing
			// that race is still an approved deal.
			current, gerr := e.store.GetMatch(ctx, matchID)
			if gerr != nil {
				return "", fmt.Errorf("reload match: %w", gerr)
			}
			if current != nil && current.Status == models.StatusApproved {
				return DecisionApproved, nil
			}
			return "", engine.Conflict("match %s changed status concurrently", matchID)
		}
		return "", fmt.Errorf("update status: %w", err)
	}
	metrics.DealTransitions.WithLabelValues(string(models.StatusApproved)).Inc()
	e.logger.Info().Str("match_id", matchID.String()).Msg("deal approved by both participants")
	e.notifyBoth(ctx, match, agentID, notify.EventDealApproved, "Deal approved by both participants")
	return DecisionApproved, nil
}

// Start moves an approved deal into execution.
func (e *Engine) Start(ctx context.Context, matchID, agentID uuid.UUID) (*models.Match, error) {
	match, err := e.loadForAgent(ctx, matchID, agentID)
	if err != nil {
		return nil, err
	}
	next, err := e.transition(ctx, match, ActionStart)
	if err != nil {
		return nil, err
	}
	match.Status = next
	e.notifyBoth(ctx, match, agentID, notify.EventDealStarted, "Deal work started")
	return match, nil
}

// Complete marks an in-progress deal finished.
func (e *Engine) Complete(ctx context.Context, matchID, agentID uuid.UUID) (*models.Match, error) {
	match, err := e.loadForAgent(ctx, matchID, agentID)
	if err != nil {
		return nil, err
	}
	next, err := e.transition(ctx, match, ActionComplete)
	if err != nil {
		return nil, err
	}
	match.Status = next
	e.notifyBoth(ctx, match, agentID, notify.EventDealCompleted, "Deal completed")
	return match, nil
}

// Cancel abandons a deal from any pre-terminal status that allows it.
func (e *Engine) Cancel(ctx context.Context, matchID, agentID uuid.UUID) (*models.Match, error) {
	match, err := e.loadForAgent(ctx, matchID, agentID)
	if err != nil {
		return nil, err
	}
	next, err := e.transition(ctx, match, ActionCancel)
	if err != nil {
		return nil, err
	}
	match.Status = next
	e.notifyCounterpart(ctx, match, agentID, notify.EventDealCancelled, "Deal cancelled by counterpart")
	return match, nil
}

// Expire times out a stale pre-approval deal. It is a system action
// with no acting participant.
func (e *Engine) Expire(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	match, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if match == nil {
		return nil, engine.NotFound("match %s not found", matchID)
	}
	next, err := e.transition(ctx, match, ActionExpire)
	if err != nil {
		return nil, err
	}
	match.Status = next
	if e.notifier != nil {
		for _, agent := range []uuid.UUID{match.AgentA, match.AgentB} {
			e.notifier.Dispatch(ctx, &models.Notification{
				AgentID: agent,
				Type:    notify.EventDealExpired,
				MatchID: &match.ID,
				Summary: "Deal expired without agreement",
			})
		}
	}
	return match, nil
}

// CreateMilestone attaches an informational milestone to an active
// deal. Milestones never drive match status.
func (e *Engine) CreateMilestone(ctx context.Context, matchID, agentID uuid.UUID, m *models.Milestone) (*models.Milestone, error) {
	if m.Title == "" {
		return nil, engine.Validation("milestone title is required")
	}
	if m.Status != "" && !m.Status.Valid() {
		return nil, engine.Validation("invalid milestone status %q", m.Status)
	}

	match, err := e.loadForAgent(ctx, matchID, agentID)
	if err != nil {
		return nil, err
	}
	if match.Status.Terminal() {
		return nil, engine.Conflict("cannot add milestones to a deal in status %q", match.Status)
	}

	m.MatchID = matchID
	m.CreatedBy = agentID
	if err := e.store.CreateMilestone(ctx, m); err != nil {
		return nil, fmt.Errorf("create milestone: %w", err)
	}
	e.notifyCounterpart(ctx, match, agentID, notify.EventMilestoneCreated,
		fmt.Sprintf("Milestone added: %s", m.Title))
	return m, nil
}

// UpdateMilestone applies partial changes to a milestone. When the
// change completes the last open milestone, both participants are
// told; the match status still does not move.
func (e *Engine) UpdateMilestone(ctx context.Context, milestoneID, agentID uuid.UUID, apply func(*models.Milestone) error) (*models.Milestone, error) {
	m, err := e.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("load milestone: %w", err)
	}
	if m == nil {
		return nil, engine.NotFound("milestone %s not found", milestoneID)
	}

	match, err := e.loadForAgent(ctx, m.MatchID, agentID)
	if err != nil {
		return nil, err
	}
	if match.Status.Terminal() {
		return nil, engine.Conflict("cannot update milestones of a deal in status %q", match.Status)
	}

	wasCompleted := m.Status == models.MilestoneCompleted
	if err := apply(m); err != nil {
		return nil, err
	}
	if !m.Status.Valid() {
		return nil, engine.Validation("invalid milestone status %q", m.Status)
	}
	if err := e.store.UpdateMilestone(ctx, m); err != nil {
		return nil, fmt.Errorf("update milestone: %w", err)
	}

	e.notifyCounterpart(ctx, match, agentID, notify.EventMilestoneUpdated,
		fmt.Sprintf("Milestone updated: %s", m.Title))

	if !wasCompleted && m.Status == models.MilestoneCompleted {
		if done, err := e.allMilestonesDone(ctx, m.MatchID); err == nil && done {
			e.notifyBoth(ctx, match, agentID, notify.EventMilestonesCompleted, "All milestones completed")
		}
	}
	return m, nil
}

func (e *Engine) allMilestonesDone(ctx context.Context, matchID uuid.UUID) (bool, error) {
	milestones, err := e.store.ListMilestones(ctx, matchID)
	if err != nil {
		return false, err
	}
	for _, m := range milestones {
		if m.Status != models.MilestoneCompleted {
			return false, nil
		}
	}
	return len(milestones) > 0, nil
}

// FileDispute opens a dispute on an active or completed deal. Disputes
// run their own sub-lifecycle and never move the match status.
func (e *Engine) FileDispute(ctx context.Context, matchID, agentID uuid.UUID, reason string) (*models.Dispute, error) {
	if reason == "" {
		return nil, engine.Validation("dispute reason is required")
	}

	match, err := e.loadForAgent(ctx, matchID, agentID)
	if err != nil {
		return nil, err
	}
	switch match.Status {
	case models.StatusInProgress, models.StatusCompleted:
	default:
		return nil, engine.Conflict("cannot file a dispute against a deal in status %q", match.Status)
	}

	d := &models.Dispute{MatchID: matchID, FiledBy: agentID, Reason: reason}
	if err := e.store.CreateDispute(ctx, d); err != nil {
		return nil, fmt.Errorf("create dispute: %w", err)
	}
	e.notifyCounterpart(ctx, match, agentID, notify.EventDisputeFiled,
		"A dispute was filed against this deal")
	return d, nil
}

// ResolveDispute closes an open dispute with an outcome. Only the
// non-filing participant can resolve, so a dispute is never both filed
// and settled by the same side.
func (e *Engine) ResolveDispute(ctx context.Context, disputeID, agentID uuid.UUID, status models.DisputeStatus, resolution string) (*models.Dispute, error) {
	if !status.Resolved() {
		return nil, engine.Validation("invalid resolution status %q", status)
	}

	d, err := e.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("load dispute: %w", err)
	}
	if d == nil {
		return nil, engine.NotFound("dispute %s not found", disputeID)
	}
	if d.Status.Resolved() {
		return nil, engine.Conflict("dispute %s is already resolved", disputeID)
	}

	match, err := e.loadForAgent(ctx, d.MatchID, agentID)
	if err != nil {
		return nil, err
	}
	if agentID == d.FiledBy {
		return nil, engine.Unauthorized("the filing agent cannot resolve its own dispute")
	}

	now := time.Now().UTC()
	d.Status = status
	d.Resolution = &resolution
	d.ResolvedBy = &agentID
	d.ResolvedAt = &now
	if err := e.store.ResolveDispute(ctx, d); err != nil {
		return nil, fmt.Errorf("resolve dispute: %w", err)
	}
	e.notifyBoth(ctx, match, agentID, notify.EventDisputeResolved,
		fmt.Sprintf("Dispute resolved: %s", status))
	return d, nil
}
