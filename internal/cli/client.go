package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// APIError is a structured error response from the hunt API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api status %d: %s (%s)", e.Status, e.Message, e.Code)
}

// ErrorCode returns the API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Retryable reports whether a request that failed with err may succeed
// unchanged later: transport failures, server errors and tx conflicts.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return !errors.Is(err, context.Canceled)
	}
	return apiErr.Status >= 500 || apiErr.Code == "TX_CONFLICT"
}

type Me struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	DiscordID string `json:"discord_id"`
	MemberID  string `json:"member_id"`
	Admin     bool   `json:"admin"`
}

func (c *Client) Me(ctx context.Context, accessToken string) (Me, error) {
	var out Me
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out)
	return out, err
}

func (c *Client) CreateEvent(ctx context.Context, accessToken, mapYAML string) (*hunt.Event, error) {
	var out hunt.Event
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/events", accessToken, map[string]any{"map_yaml": mapYAML}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Event(ctx context.Context, accessToken, eventID string) (*hunt.Event, error) {
	var out hunt.Event
	if err := c.jsonRequest(ctx, http.MethodGet, eventPath(eventID, ""), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReplaceGraph(ctx context.Context, accessToken, eventID, mapYAML string) (*hunt.Event, error) {
	var out hunt.Event
	err := c.jsonRequest(ctx, http.MethodPut, eventPath(eventID, "/graph"), accessToken, map[string]any{"map_yaml": mapYAML}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddTeam(ctx context.Context, accessToken, eventID, teamID, name string, members []string) (hunt.TeamView, error) {
	var out hunt.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, eventPath(eventID, "/teams"), accessToken, map[string]any{
		"team_id": teamID,
		"name":    name,
		"members": members,
	}, &out)
	return out, err
}

func (c *Client) Launch(ctx context.Context, accessToken, eventID string) (*hunt.Event, error) {
	var out hunt.Event
	if err := c.jsonRequest(ctx, http.MethodPost, eventPath(eventID, "/launch"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) End(ctx context.Context, accessToken, eventID string) (*hunt.Event, error) {
	var out hunt.Event
	if err := c.jsonRequest(ctx, http.MethodPost, eventPath(eventID, "/end"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reconcile(ctx context.Context, accessToken, eventID string) (hunt.ReconcileReport, error) {
	var out hunt.ReconcileReport
	err := c.jsonRequest(ctx, http.MethodPost, eventPath(eventID, "/reconcile"), accessToken, nil, &out)
	return out, err
}

func (c *Client) Teams(ctx context.Context, accessToken, eventID string) ([]hunt.TeamView, error) {
	var out struct {
		Teams []hunt.TeamView `json:"teams"`
	}
	if err := c.jsonRequest(ctx, http.MethodGet, eventPath(eventID, "/teams"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return out.Teams, nil
}

func (c *Client) Team(ctx context.Context, accessToken, eventID, teamID string) (hunt.TeamView, error) {
	var out hunt.TeamView
	err := c.jsonRequest(ctx, http.MethodGet, teamPath(eventID, teamID, ""), accessToken, nil, &out)
	return out, err
}

func (c *Client) MyTeam(ctx context.Context, accessToken, eventID string) (hunt.TeamView, error) {
	var out hunt.TeamView
	err := c.jsonRequest(ctx, http.MethodGet, eventPath(eventID, "/me"), accessToken, nil, &out)
	return out, err
}

func (c *Client) Complete(ctx context.Context, accessToken, eventID, teamID, nodeID, proof string) (hunt.TeamView, error) {
	var out hunt.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, teamPath(eventID, teamID, "/complete"), accessToken, map[string]any{
		"node_id": nodeID,
		"proof":   proof,
	}, &out)
	return out, err
}

func (c *Client) ApplyBuff(ctx context.Context, accessToken, eventID, teamID, nodeID, buffID string) (hunt.TeamView, error) {
	var out hunt.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, teamPath(eventID, teamID, "/buffs"), accessToken, map[string]any{
		"node_id": nodeID,
		"buff_id": buffID,
	}, &out)
	return out, err
}

func (c *Client) Purchase(ctx context.Context, accessToken, eventID, teamID, nodeID, rewardID string) (hunt.TeamView, error) {
	var out hunt.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, teamPath(eventID, teamID, "/inn"), accessToken, map[string]any{
		"node_id":   nodeID,
		"reward_id": rewardID,
	}, &out)
	return out, err
}

func (c *Client) AdminComplete(ctx context.Context, accessToken, eventID, teamID, nodeID, note string) (hunt.TeamView, error) {
	return c.admin(ctx, accessToken, teamPath(eventID, teamID, "/admin/complete"), nodeID, note)
}

func (c *Client) AdminUncomplete(ctx context.Context, accessToken, eventID, teamID, nodeID, note string) (hunt.TeamView, error) {
	return c.admin(ctx, accessToken, teamPath(eventID, teamID, "/admin/uncomplete"), nodeID, note)
}

func (c *Client) admin(ctx context.Context, accessToken, path, nodeID, note string) (hunt.TeamView, error) {
	var out hunt.TeamView
	err := c.jsonRequest(ctx, http.MethodPost, path, accessToken, map[string]any{
		"node_id": nodeID,
		"note":    note,
	}, &out)
	return out, err
}

func eventPath(eventID, suffix string) string {
	return "/v1/events/" + url.PathEscape(eventID) + suffix
}

func teamPath(eventID, teamID, suffix string) string {
	return eventPath(eventID, "/teams/"+url.PathEscape(teamID)+suffix)
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Code != "" {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
