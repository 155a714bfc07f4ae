// Package dealmesh provides a client for the DealMesh matching and
// deal lifecycle API.
package dealmesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AgentHeader carries the acting agent's ID on write requests.
const AgentHeader = "X-DealMesh-Agent"

// Client is a DealMesh API client.
type Client struct {
	BaseURL    string
	AgentID    string
	HTTPClient *http.Client
}

// NewClient creates a new client acting as the given agent. AgentID
// may be empty for read-only use and after registration.
func NewClient(baseURL, agentID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		AgentID:    agentID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AgentID != "" {
		req.Header.Set(AgentHeader, c.AgentID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Agent is a registered platform participant.
type Agent struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Reputation float64 `json:"reputation"`
}

// Register creates a new agent and adopts its identity on the client.
func (c *Client) Register(ctx context.Context, name string) (*Agent, error) {
	var agent Agent
	err := c.do(ctx, http.MethodPost, "/api/agents", map[string]string{"name": name}, &agent)
	if err != nil {
		return nil, err
	}
	c.AgentID = agent.ID
	return &agent, nil
}

// ProfileRequest describes a listing to create.
type ProfileRequest struct {
	Side      string     `json:"side"`
	Category  string     `json:"category"`
	Skills    []string   `json:"skills,omitempty"`
	RateMin   *float64   `json:"rate_min,omitempty"`
	RateMax   *float64   `json:"rate_max,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	Remote    string     `json:"remote,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Profile is a created listing.
type Profile struct {
	ID       string   `json:"id"`
	AgentID  string   `json:"agent_id"`
	Side     string   `json:"side"`
	Category string   `json:"category"`
	Skills   []string `json:"skills,omitempty"`
	Active   bool     `json:"active"`
}

// CreateProfile creates a listing for the acting agent.
func (c *Client) CreateProfile(ctx context.Context, req ProfileRequest) (*Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodPost, "/api/profiles", req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Match is one scored pairing of two profiles.
type Match struct {
	ID      string `json:"id"`
	AgentA  string `json:"agent_a"`
	AgentB  string `json:"agent_b"`
	Status  string `json:"status"`
	Overlap struct {
		Score        int      `json:"score"`
		SharedSkills []string `json:"shared_skills,omitempty"`
	} `json:"overlap"`
}

// FindMatches scores a profile against the opposite side of the
// market, best match first.
func (c *Client) FindMatches(ctx context.Context, profileID string) ([]Match, error) {
	var out struct {
		Matches []Match `json:"matches"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/matches/"+profileID, nil, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// SendMessage posts a negotiation message to a deal.
func (c *Client) SendMessage(ctx context.Context, matchID, content string) error {
	return c.do(ctx, http.MethodPost, "/api/deals/"+matchID+"/messages",
		map[string]interface{}{"content": content, "message_type": "negotiation"}, nil)
}

// Propose posts a proposal with concrete terms, moving the deal to
// proposed.
func (c *Client) Propose(ctx context.Context, matchID, content string, terms map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/api/deals/"+matchID+"/messages",
		map[string]interface{}{"content": content, "message_type": "proposal", "proposed_terms": terms}, nil)
}

// Approve records the acting agent's decision on a pending proposal
// and returns the resulting decision: waiting, approved or rejected.
func (c *Client) Approve(ctx context.Context, matchID string, approved bool) (string, error) {
	var out struct {
		Decision string `json:"decision"`
	}
	err := c.do(ctx, http.MethodPost, "/api/deals/"+matchID+"/approve",
		map[string]bool{"approved": approved}, &out)
	return out.Decision, err
}

// Notification is a persisted event for the acting agent.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	MatchID   *string   `json:"match_id,omitempty"`
	Summary   string    `json:"summary"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifications fetches the acting agent's notifications, newest
// first.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	path := "/api/notifications"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}
