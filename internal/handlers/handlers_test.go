package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmesh-protocol/dealmesh/internal/api"
	"github.com/dealmesh-protocol/dealmesh/internal/api/middleware"
	"github.com/dealmesh-protocol/dealmesh/internal/deal"
	"github.com/dealmesh-protocol/dealmesh/internal/handlers"
	"github.com/dealmesh-protocol/dealmesh/internal/matching"
	"github.com/dealmesh-protocol/dealmesh/internal/notify"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

type testAPI struct {
	srv        *httptest.Server
	dispatcher *notify.Dispatcher
}

// newTestAPI wires the full stack over SQLite, without Redis.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	logger := zerolog.Nop()
	dispatcher := notify.NewDispatcher(s, notify.NewSender(2*time.Second), 64, 1, logger)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	signals := handlers.NewSignalAdapter(s, nil)
	resolver := matching.NewResolver(s, signals, dispatcher, logger)
	dealEngine := deal.NewEngine(s, dispatcher, logger)
	h := handlers.NewHandler(s, nil, resolver, dealEngine, logger)

	router := api.NewRouter(logger, h, nil, middleware.RateLimiterConfig{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, dispatcher: dispatcher}
}

// call performs a JSON request as the given agent and decodes the
// response body into a generic map.
func (a *testAPI) call(t *testing.T, method, path, agentID string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if agentID != "" {
		req.Header.Set(middleware.AgentHeader, agentID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func (a *testAPI) register(t *testing.T, name string) string {
	t.Helper()
	status, body := a.call(t, "POST", "/api/agents", "", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, status)
	return body["id"].(string)
}

func (a *testAPI) createProfile(t *testing.T, agentID, side string) string {
	t.Helper()
	status, body := a.call(t, "POST", "/api/profiles", agentID, map[string]interface{}{
		"side":     side,
		"category": "backend",
		"skills":   []string{"go", "postgres"},
		"rate_min": 50,
		"rate_max": 100,
	})
	require.Equal(t, http.StatusCreated, status)
	return body["id"].(string)
}

func TestRegisterAgentValidation(t *testing.T) {
	a := newTestAPI(t)

	status, _ := a.call(t, "POST", "/api/agents", "", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.call(t, "POST", "/api/agents", "", map[string]string{"name": "alice"})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["id"])
}

func TestCreateProfileValidation(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")

	// Missing agent header
	status, _ := a.call(t, "POST", "/api/profiles", "", map[string]string{"side": "offering", "category": "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	// Bad side
	status, _ = a.call(t, "POST", "/api/profiles", alice, map[string]string{"side": "buying", "category": "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	// Inverted rates
	status, _ = a.call(t, "POST", "/api/profiles", alice, map[string]interface{}{
		"side": "offering", "category": "x", "rate_min": 100, "rate_max": 50,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// Unknown agent
	status, _ = a.call(t, "POST", "/api/profiles", "00000000-0000-0000-0000-000000000001",
		map[string]string{"side": "offering", "category": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMatchAndDealFlow(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")
	bob := a.register(t, "bob")
	offer := a.createProfile(t, alice, "offering")
	a.createProfile(t, bob, "seeking")

	// Matching is idempotent
	status, body := a.call(t, "GET", "/api/matches/"+offer, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
	matches := body["matches"].([]interface{})
	matchID := matches[0].(map[string]interface{})["id"].(string)

	status, body = a.call(t, "GET", "/api/matches/"+offer, "", nil)
	require.Equal(t, http.StatusOK, status)
	again := body["matches"].([]interface{})
	assert.Equal(t, matchID, again[0].(map[string]interface{})["id"].(string))

	// Outsiders cannot message
	mallory := a.register(t, "mallory")
	status, _ = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/messages", matchID), mallory,
		map[string]string{"content": "let me in", "message_type": "negotiation"})
	assert.Equal(t, http.StatusForbidden, status)

	// Negotiate, propose
	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/messages", matchID), alice,
		map[string]string{"content": "interested?", "message_type": "negotiation"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "negotiating", body["status"])

	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/messages", matchID), bob,
		map[string]interface{}{
			"content": "how about 75/h", "message_type": "proposal",
			"proposed_terms": map[string]interface{}{"rate": 75},
		})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "proposed", body["status"])

	// Approving before proposal would be rejected; now both approve
	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/approve", matchID), alice,
		map[string]bool{"approved": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "waiting", body["decision"])

	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/approve", matchID), bob,
		map[string]bool{"approved": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "approved", body["decision"])

	// Start and complete
	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/start", matchID), alice, map[string]string{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "in_progress", body["status"])

	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/complete", matchID), bob, map[string]string{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", body["status"])

	// Terminal: further lifecycle calls conflict
	status, _ = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/cancel", matchID), alice, map[string]string{})
	assert.Equal(t, http.StatusConflict, status)

	// Transcript survived
	status, body = a.call(t, "GET", fmt.Sprintf("/api/deals/%s/messages", matchID), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
}

func TestPostMessageBodySchema(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")
	bob := a.register(t, "bob")
	offer := a.createProfile(t, alice, "offering")
	a.createProfile(t, bob, "seeking")

	status, body := a.call(t, "GET", "/api/matches/"+offer, "", nil)
	require.Equal(t, http.StatusOK, status)
	matchID := body["matches"].([]interface{})[0].(map[string]interface{})["id"].(string)

	// A missing message_type is rejected, never coerced to negotiation
	status, _ = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/messages", matchID), alice,
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusBadRequest, status)

	// A proposal without proposed_terms is rejected
	status, _ = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/messages", matchID), alice,
		map[string]string{"content": "deal?", "message_type": "proposal"})
	assert.Equal(t, http.StatusBadRequest, status)

	// message_type: proposal actually proposes
	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/messages", matchID), alice,
		map[string]interface{}{
			"content": "deal?", "message_type": "proposal",
			"proposed_terms": map[string]interface{}{"rate": 55},
		})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "proposed", body["status"])

	// The short field name still works as an alias
	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/messages", matchID), bob,
		map[string]string{"content": "thinking about it", "type": "negotiation"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "proposed", body["status"])
}

func TestApprovalIllegalState(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")
	bob := a.register(t, "bob")
	offer := a.createProfile(t, alice, "offering")
	a.createProfile(t, bob, "seeking")

	status, body := a.call(t, "GET", "/api/matches/"+offer, "", nil)
	require.Equal(t, http.StatusOK, status)
	matchID := body["matches"].([]interface{})[0].(map[string]interface{})["id"].(string)

	// No proposal pending
	status, body = a.call(t, "POST", fmt.Sprintf("/api/deals/%s/approve", matchID), alice,
		map[string]bool{"approved": true})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "matched")
}

func TestNotificationsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")
	bob := a.register(t, "bob")
	offer := a.createProfile(t, alice, "offering")
	a.createProfile(t, bob, "seeking")

	status, _ := a.call(t, "GET", "/api/matches/"+offer, "", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := a.call(t, "GET", "/api/notifications", bob, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
	n := body["notifications"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "new_match", n["type"])

	status, _ = a.call(t, "POST", "/api/notifications/"+n["id"].(string)+"/read", bob, map[string]string{})
	assert.Equal(t, http.StatusOK, status)
}

func TestWebhookCRUD(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")
	bob := a.register(t, "bob")

	status, body := a.call(t, "POST", "/api/webhooks", alice, map[string]interface{}{
		"url": "https://example.com/hook", "events": []string{"deal_approved"},
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["secret"], "secret returned exactly once")
	hookID := body["webhook"].(map[string]interface{})["id"].(string)

	status, _ = a.call(t, "POST", "/api/webhooks", alice, map[string]string{"url": "not-a-url"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = a.call(t, "GET", "/api/webhooks", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	// Ownership enforced
	status, _ = a.call(t, "DELETE", "/api/webhooks/"+hookID, bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.call(t, "POST", "/api/webhooks/"+hookID+"/enable", alice, map[string]string{})
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.call(t, "DELETE", "/api/webhooks/"+hookID, alice, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = a.call(t, "GET", "/api/webhooks", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestHealthAndStats(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "alice")

	status, body := a.call(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = a.call(t, "GET", "/stats", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total_agents"])
}
