package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmesh-protocol/dealmesh/internal/crypto"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

type received struct {
	body      []byte
	event     string
	signature string
}

// receiver is a webhook endpoint capturing deliveries.
type receiver struct {
	mu     sync.Mutex
	got    []received
	status int
}

func (rc *receiver) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rc.mu.Lock()
		rc.got = append(rc.got, received{
			body:      body,
			event:     r.Header.Get(HeaderEvent),
			signature: r.Header.Get(HeaderSignature),
		})
		status := rc.status
		rc.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (rc *receiver) deliveries() []received {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]received(nil), rc.got...)
}

func (rc *receiver) setStatus(status int) {
	rc.mu.Lock()
	rc.status = status
	rc.mu.Unlock()
}

func setup(t *testing.T) (*store.SQLiteStore, *models.Agent) {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	agent := &models.Agent{Name: "alice"}
	require.NoError(t, s.CreateAgent(ctx, agent))
	return s, agent
}

func subscribe(t *testing.T, s *store.SQLiteStore, agentID uuid.UUID, url string, events ...string) *models.Webhook {
	t.Helper()
	hook := &models.Webhook{
		AgentID: agentID,
		URL:     url,
		Secret:  crypto.NewSecret(),
		Events:  events,
	}
	require.NoError(t, s.CreateWebhook(context.Background(), hook))
	return hook
}

func TestDispatchPersistsAndDelivers(t *testing.T) {
	s, agent := setup(t)
	rc := &receiver{}
	srv := httptest.NewServer(rc.handler())
	defer srv.Close()

	hook := subscribe(t, s, agent.ID, srv.URL)

	d := NewDispatcher(s, NewSender(2*time.Second), 16, 1, zerolog.Nop())
	d.Start()
	d.Dispatch(context.Background(), &models.Notification{
		AgentID: agent.ID,
		Type:    EventNewMatch,
		Summary: "New match with overlap score 50",
	})
	d.Stop()

	// Notification persisted synchronously
	list, err := s.ListNotifications(context.Background(), agent.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, EventNewMatch, list[0].Type)

	// One delivery, correctly signed over the exact bytes
	got := rc.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, EventNewMatch, got[0].event)
	assert.True(t, crypto.Verify(got[0].body, hook.Secret, got[0].signature))

	var payload Payload
	require.NoError(t, json.Unmarshal(got[0].body, &payload))
	assert.Equal(t, EventNewMatch, payload.Event)
	assert.Equal(t, agent.ID, payload.AgentID)
	assert.Equal(t, "New match with overlap score 50", payload.Summary)
	assert.False(t, payload.Timestamp.IsZero())
}

func TestDispatchFiltersEvents(t *testing.T) {
	s, agent := setup(t)
	rc := &receiver{}
	srv := httptest.NewServer(rc.handler())
	defer srv.Close()

	subscribe(t, s, agent.ID, srv.URL, EventDealApproved)

	d := NewDispatcher(s, NewSender(2*time.Second), 16, 1, zerolog.Nop())
	d.Start()
	d.Dispatch(context.Background(), &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})
	d.Dispatch(context.Background(), &models.Notification{AgentID: agent.ID, Type: EventDealApproved, Summary: "y"})
	d.Stop()

	got := rc.deliveries()
	require.Len(t, got, 1, "only the subscribed event is delivered")
	assert.Equal(t, EventDealApproved, got[0].event)
}

func TestFailuresDisableWebhook(t *testing.T) {
	ctx := context.Background()
	s, agent := setup(t)
	rc := &receiver{}
	rc.setStatus(http.StatusInternalServerError)
	srv := httptest.NewServer(rc.handler())
	defer srv.Close()

	hook := subscribe(t, s, agent.ID, srv.URL)

	d := NewDispatcher(s, NewSender(2*time.Second), 16, 1, zerolog.Nop())
	d.Start()
	for i := 0; i < store.FailureCeiling; i++ {
		d.Dispatch(ctx, &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})
	}
	d.Stop()

	updated, err := s.GetWebhook(ctx, hook.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, store.FailureCeiling, updated.FailureCount)
	assert.False(t, updated.Active, "webhook disables at the failure ceiling")

	// Disabled webhooks receive nothing further
	before := len(rc.deliveries())
	d2 := NewDispatcher(s, NewSender(2*time.Second), 16, 1, zerolog.Nop())
	d2.Start()
	d2.Dispatch(ctx, &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})
	d2.Stop()
	assert.Len(t, rc.deliveries(), before)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	s, agent := setup(t)
	rc := &receiver{}
	rc.setStatus(http.StatusInternalServerError)
	srv := httptest.NewServer(rc.handler())
	defer srv.Close()

	hook := subscribe(t, s, agent.ID, srv.URL)

	d := NewDispatcher(s, NewSender(2*time.Second), 16, 1, zerolog.Nop())
	d.Start()
	d.Dispatch(ctx, &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})
	d.Dispatch(ctx, &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})
	d.Stop()

	mid, err := s.GetWebhook(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, mid.FailureCount)

	rc.setStatus(http.StatusOK)
	d2 := NewDispatcher(s, NewSender(2*time.Second), 16, 1, zerolog.Nop())
	d2.Start()
	d2.Dispatch(ctx, &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})
	d2.Stop()

	after, err := s.GetWebhook(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.FailureCount, "one success clears the streak")
	assert.True(t, after.Active)
}

func TestSlowSubscriberDoesNotDelayOthers(t *testing.T) {
	ctx := context.Background()
	s, agent := setup(t)

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	fastHit := make(chan struct{}, 1)
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fastHit <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	subscribe(t, s, agent.ID, slow.URL)
	fastHook := subscribe(t, s, agent.ID, fast.URL)

	d := NewDispatcher(s, NewSender(5*time.Second), 16, 1, zerolog.Nop())
	d.Start()
	d.Dispatch(ctx, &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})

	// The healthy subscriber must receive its delivery while the other
	// one is still stalled.
	select {
	case <-fastHit:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery waited behind a stalled subscriber")
	}
	close(release)
	d.Stop()

	// The stall charged nothing to the healthy webhook
	updated, err := s.GetWebhook(ctx, fastHook.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 0, updated.FailureCount)
	assert.True(t, updated.Active)
}

func TestUnreachableEndpointIsFireAndForget(t *testing.T) {
	ctx := context.Background()
	s, agent := setup(t)

	// Nothing listens here
	subscribe(t, s, agent.ID, "http://127.0.0.1:1/hook")

	d := NewDispatcher(s, NewSender(500*time.Millisecond), 16, 1, zerolog.Nop())
	d.Start()
	d.Dispatch(ctx, &models.Notification{AgentID: agent.ID, Type: EventNewMatch, Summary: "x"})
	d.Stop()

	// The notification row still exists; only the delivery failed
	list, err := s.ListNotifications(ctx, agent.ID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
