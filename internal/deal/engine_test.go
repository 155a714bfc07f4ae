package deal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmesh-protocol/dealmesh/internal/engine"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
	"github.com/dealmesh-protocol/dealmesh/internal/notify"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (c *captureNotifier) Dispatch(_ context.Context, n *models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, *n)
}

func (c *captureNotifier) ofType(event string) []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Notification
	for _, n := range c.sent {
		if n.Type == event {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	store    *store.SQLiteStore
	engine   *Engine
	notifier *captureNotifier
	alice    uuid.UUID
	bob      uuid.UUID
	match    *models.Match
}

// newFixture seeds two agents with complementary profiles and one
// match between them.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	alice := &models.Agent{Name: "alice"}
	bob := &models.Agent{Name: "bob"}
	require.NoError(t, s.CreateAgent(ctx, alice))
	require.NoError(t, s.CreateAgent(ctx, bob))

	offer := &models.Profile{AgentID: alice.ID, Side: models.SideOffering, Category: "backend", Active: true}
	seek := &models.Profile{AgentID: bob.ID, Side: models.SideSeeking, Category: "backend", Active: true}
	require.NoError(t, s.CreateProfile(ctx, offer))
	require.NoError(t, s.CreateProfile(ctx, seek))

	pa, pb := models.OrderProfilePair(offer.ID, seek.ID)
	match := &models.Match{
		ProfileA: pa, ProfileB: pb,
		AgentA: alice.ID, AgentB: bob.ID,
		Overlap: models.Overlap{Score: 50, RemoteCompatible: true, SameCategory: true},
		Status:  models.StatusMatched,
	}
	if pa != offer.ID {
		match.AgentA, match.AgentB = bob.ID, alice.ID
	}
	require.NoError(t, s.CreateMatch(ctx, match))

	notifier := &captureNotifier{}
	return &fixture{
		store:    s,
		engine:   NewEngine(s, notifier, zerolog.Nop()),
		notifier: notifier,
		alice:    alice.ID,
		bob:      bob.ID,
		match:    match,
	}
}

func (f *fixture) status(t *testing.T) models.MatchStatus {
	t.Helper()
	m, err := f.store.GetMatch(context.Background(), f.match.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.Status
}

func (f *fixture) propose(t *testing.T, by uuid.UUID) {
	t.Helper()
	_, _, err := f.engine.RecordMessage(context.Background(), f.match.ID, by, "here is my offer",
		models.MessageProposal, map[string]any{"rate": 75})
	require.NoError(t, err)
}

func TestNegotiationOpensDeal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, _, err := f.engine.RecordMessage(ctx, f.match.ID, f.alice, "hello", models.MessageNegotiation, nil)
	require.NoError(t, err)
	assert.Equal(t, models.MessageNegotiation, msg.Type)
	assert.Equal(t, models.StatusNegotiating, f.status(t))

	// Counterpart gets told
	got := f.notifier.ofType(notify.EventMessageReceived)
	require.Len(t, got, 1)
	assert.Equal(t, f.bob, got[0].AgentID)
}

func TestProposalMovesToProposed(t *testing.T) {
	f := newFixture(t)

	f.propose(t, f.alice)
	assert.Equal(t, models.StatusProposed, f.status(t))
	require.Len(t, f.notifier.ofType(notify.EventDealProposed), 1)
}

func TestNegotiationDoesNotRegressProposed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.propose(t, f.alice)
	_, _, err := f.engine.RecordMessage(ctx, f.match.ID, f.bob, "can you do 70?", models.MessageNegotiation, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProposed, f.status(t), "discussion never regresses a pending proposal")
}

func TestProposalRequiresTerms(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.engine.RecordMessage(context.Background(), f.match.ID, f.alice, "offer", models.MessageProposal, nil)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
}

func TestMessageTypeIsRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.RecordMessage(ctx, f.match.ID, f.alice, "hello", "", nil)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	_, _, err = f.engine.RecordMessage(ctx, f.match.ID, f.alice, "hello", "shout", nil)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	assert.Equal(t, models.StatusMatched, f.status(t), "rejected messages leave the deal untouched")
}

func TestOutsiderCannotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := uuid.New()

	_, _, err := f.engine.RecordMessage(ctx, f.match.ID, outsider, "hi", models.MessageNegotiation, nil)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	_, err = f.engine.RecordApproval(ctx, f.match.ID, outsider, true)
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	assert.Equal(t, models.StatusMatched, f.status(t), "rejected writes must not mutate")
}

func TestApprovalRequiresProposed(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.RecordApproval(context.Background(), f.match.ID, f.alice, true)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
	assert.Equal(t, models.StatusMatched, f.status(t))
}

func TestApprovalConsensus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.propose(t, f.alice)

	decision, err := f.engine.RecordApproval(ctx, f.match.ID, f.alice, true)
	require.NoError(t, err)
	assert.Equal(t, DecisionWaiting, decision)
	assert.Equal(t, models.StatusProposed, f.status(t), "one approval is not consensus")

	decision, err = f.engine.RecordApproval(ctx, f.match.ID, f.bob, true)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, decision)
	assert.Equal(t, models.StatusApproved, f.status(t))
	assert.Len(t, f.notifier.ofType(notify.EventDealApproved), 2)
}

func TestApprovalConsensusEitherOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.propose(t, f.alice)

	decision, err := f.engine.RecordApproval(ctx, f.match.ID, f.bob, true)
	require.NoError(t, err)
	assert.Equal(t, DecisionWaiting, decision)

	decision, err = f.engine.RecordApproval(ctx, f.match.ID, f.alice, true)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, decision)
}

func TestRejectionImmediate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.propose(t, f.alice)

	decision, err := f.engine.RecordApproval(ctx, f.match.ID, f.bob, false)
	require.NoError(t, err)
	assert.Equal(t, DecisionRejected, decision)
	assert.Equal(t, models.StatusRejected, f.status(t))
	assert.Len(t, f.notifier.ofType(notify.EventDealRejected), 2)
}

func TestApproveAfterRejectFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.propose(t, f.alice)

	_, err := f.engine.RecordApproval(ctx, f.match.ID, f.bob, false)
	require.NoError(t, err)

	_, err = f.engine.RecordApproval(ctx, f.match.ID, f.alice, true)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
	assert.Equal(t, models.StatusRejected, f.status(t))
}

func approveBoth(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	f.propose(t, f.alice)
	_, err := f.engine.RecordApproval(ctx, f.match.ID, f.alice, true)
	require.NoError(t, err)
	_, err = f.engine.RecordApproval(ctx, f.match.ID, f.bob, true)
	require.NoError(t, err)
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approveBoth(t, f)

	_, err := f.engine.Start(ctx, f.match.ID, f.alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, f.status(t))

	_, err = f.engine.Complete(ctx, f.match.ID, f.bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, f.status(t))
}

func TestCompletedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approveBoth(t, f)
	_, err := f.engine.Start(ctx, f.match.ID, f.alice)
	require.NoError(t, err)
	_, err = f.engine.Complete(ctx, f.match.ID, f.alice)
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, f.match.ID, f.alice)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
	_, _, err = f.engine.RecordMessage(ctx, f.match.ID, f.alice, "one more thing", models.MessageNegotiation, nil)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
	assert.Equal(t, models.StatusCompleted, f.status(t))
}

func TestStartRequiresApproved(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Start(context.Background(), f.match.ID, f.alice)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
}

func TestExpirePreApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Expire(ctx, f.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, f.status(t))
	assert.Len(t, f.notifier.ofType(notify.EventDealExpired), 2)
}

func TestExpireAfterApprovalFails(t *testing.T) {
	f := newFixture(t)
	approveBoth(t, f)

	_, err := f.engine.Expire(context.Background(), f.match.ID)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
	assert.Equal(t, models.StatusApproved, f.status(t))
}

func TestMilestoneFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approveBoth(t, f)

	m1, err := f.engine.CreateMilestone(ctx, f.match.ID, f.alice, &models.Milestone{Title: "design"})
	require.NoError(t, err)
	m2, err := f.engine.CreateMilestone(ctx, f.match.ID, f.alice, &models.Milestone{Title: "build", Position: 1})
	require.NoError(t, err)

	complete := func(m *models.Milestone) error {
		m.Status = models.MilestoneCompleted
		return nil
	}
	_, err = f.engine.UpdateMilestone(ctx, m1.ID, f.bob, complete)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.ofType(notify.EventMilestonesCompleted), "one of two is not all")

	_, err = f.engine.UpdateMilestone(ctx, m2.ID, f.bob, complete)
	require.NoError(t, err)
	assert.Len(t, f.notifier.ofType(notify.EventMilestonesCompleted), 2)

	// Milestones never drive the deal status
	assert.Equal(t, models.StatusApproved, f.status(t))
}

func TestMilestoneOutsiderRejected(t *testing.T) {
	f := newFixture(t)
	approveBoth(t, f)

	_, err := f.engine.CreateMilestone(context.Background(), f.match.ID, uuid.New(), &models.Milestone{Title: "x"})
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))
}

func TestDisputeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approveBoth(t, f)
	_, err := f.engine.Start(ctx, f.match.ID, f.alice)
	require.NoError(t, err)

	d, err := f.engine.FileDispute(ctx, f.match.ID, f.alice, "deliverable missing")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeOpen, d.Status)

	// The filer cannot settle its own dispute
	_, err = f.engine.ResolveDispute(ctx, d.ID, f.alice, models.DisputeResolvedUpheld, "agreed")
	assert.Equal(t, engine.KindUnauthorized, engine.KindOf(err))

	resolved, err := f.engine.ResolveDispute(ctx, d.ID, f.bob, models.DisputeResolvedDismissed, "delivered on time")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeResolvedDismissed, resolved.Status)

	_, err = f.engine.ResolveDispute(ctx, d.ID, f.bob, models.DisputeResolvedUpheld, "again")
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))

	// Disputes never move the match
	assert.Equal(t, models.StatusInProgress, f.status(t))
}

func TestDisputeRequiresActiveDeal(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.FileDispute(context.Background(), f.match.ID, f.alice, "too early")
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
}
