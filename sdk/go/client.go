package playbooksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Playbook HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for the API served at baseURL under /v2.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v2",
		Timeout:  10 * time.Second,
	}
}

// StageDefinition is one stage of a play template.
type StageDefinition struct {
	Key            string   `json:"key"`
	Label          string   `json:"label,omitempty"`
	Objective      string   `json:"objective,omitempty"`
	Guidance       string   `json:"guidance,omitempty"`
	ChecklistItems []string `json:"checklist_items,omitempty"`
}

// Play represents the API play model (partial).
type Play struct {
	ID         int64             `json:"id,omitempty"`
	Title      string            `json:"title"`
	Summary    string            `json:"summary,omitempty"`
	Offering   string            `json:"offering,omitempty"`
	Sector     string            `json:"sector,omitempty"`
	Geo        string            `json:"geo,omitempty"`
	SalesStage string            `json:"sales_stage,omitempty"`
	StageScope []string          `json:"stage_scope,omitempty"`
	Stages     []StageDefinition `json:"stages,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
}

type MatchResult struct {
	Play  Play `json:"play"`
	Score int  `json:"score"`
}

type MatchQuery struct {
	Offering []string
	Sector   string
	Region   string
	Stage    string
}

type StageInstance struct {
	ID                    string            `json:"id"`
	PlayStageKey          string            `json:"play_stage_key"`
	Position              int               `json:"position"`
	Status                string            `json:"status"`
	StartDate             *string           `json:"start_date,omitempty"`
	TargetDate            *string           `json:"target_date,omitempty"`
	CompletedDate         *string           `json:"completed_date,omitempty"`
	SummaryNote           *string           `json:"summary_note,omitempty"`
	ChecklistItemStatuses map[string]string `json:"checklist_item_statuses,omitempty"`
	RiskFlags             []string          `json:"risk_flags,omitempty"`
	Version               int64             `json:"version"`
}

type OpportunityPlay struct {
	ID             string          `json:"id"`
	PlayID         int64           `json:"play_id"`
	AliasName      string          `json:"alias_name,omitempty"`
	IsPrimary      bool            `json:"is_primary"`
	IsActive       bool            `json:"is_active"`
	StageInstances []StageInstance `json:"stage_instances"`
}

// Opportunity represents the API opportunity model (partial).
type Opportunity struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	AccountName      string            `json:"account_name,omitempty"`
	Region           string            `json:"region,omitempty"`
	Industry         string            `json:"industry,omitempty"`
	Offering         string            `json:"offering,omitempty"`
	Status           string            `json:"status,omitempty"`
	Health           string            `json:"health,omitempty"`
	PrimaryPlayID    *int64            `json:"primary_play_id,omitempty"`
	OpportunityPlays []OpportunityPlay `json:"opportunity_plays,omitempty"`
}

// StageUpdate is a sparse stage change; nil fields are left alone.
type StageUpdate struct {
	Status                *string           `json:"status,omitempty"`
	StartDate             *string           `json:"start_date,omitempty"`
	TargetDate            *string           `json:"target_date,omitempty"`
	CompletedDate         *string           `json:"completed_date,omitempty"`
	SummaryNote           *string           `json:"summary_note,omitempty"`
	ChecklistItemStatuses map[string]string `json:"checklist_item_statuses,omitempty"`
	RiskFlags             []string          `json:"risk_flags,omitempty"`
	ExpectedVersion       *int64            `json:"expected_version,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// CreatePlay creates a play. Stages are resolved from StageScope when
// Stages is empty.
func (c *Client) CreatePlay(ctx context.Context, p Play) (Play, error) {
	var resp Play
	err := c.do(ctx, http.MethodPost, "plays", p, &resp)
	return resp, err
}

func (c *Client) GetPlay(ctx context.Context, id int64) (Play, error) {
	var resp Play
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("plays/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) ListPlays(ctx context.Context) ([]Play, error) {
	var resp struct {
		Items []Play `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "plays", nil, &resp)
	return resp.Items, err
}

// MatchPlays ranks plays against q, best first.
func (c *Client) MatchPlays(ctx context.Context, q MatchQuery) ([]MatchResult, error) {
	values := url.Values{}
	if len(q.Offering) > 0 {
		values.Set("offering", strings.Join(q.Offering, ","))
	}
	for k, v := range map[string]string{"sector": q.Sector, "region": q.Region, "stage": q.Stage} {
		if v != "" {
			values.Set(k, v)
		}
	}
	endpoint := "plays/match"
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}
	var resp struct {
		Items []MatchResult `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// CreateOpportunity creates an opportunity and attaches playIDs. Any
// unknown play aborts the creation.
func (c *Client) CreateOpportunity(ctx context.Context, o Opportunity, playIDs ...int64) (Opportunity, error) {
	body := map[string]any{}
	data, err := json.Marshal(o)
	if err != nil {
		return Opportunity{}, err
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return Opportunity{}, err
	}
	delete(body, "id")
	delete(body, "opportunity_plays")
	delete(body, "primary_play_id")
	if len(playIDs) > 0 {
		body["play_ids"] = playIDStrings(playIDs)
	}
	var resp Opportunity
	err = c.do(ctx, http.MethodPost, "opportunities", body, &resp)
	return resp, err
}

func (c *Client) GetOpportunity(ctx context.Context, id string) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodGet, "opportunities/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// AttachPlays attaches plays additively; unknown ids are skipped.
func (c *Client) AttachPlays(ctx context.Context, opportunityID string, playIDs ...int64) (Opportunity, error) {
	var resp Opportunity
	body := map[string]any{"play_ids": playIDStrings(playIDs)}
	err := c.do(ctx, http.MethodPatch, "opportunities/"+url.PathEscape(opportunityID), body, &resp)
	return resp, err
}

// UpdateStage patches one stage instance of an attached play.
func (c *Client) UpdateStage(ctx context.Context, opportunityID string, playID int64, stageKey string, u StageUpdate) (StageInstance, error) {
	var resp StageInstance
	endpoint := fmt.Sprintf("opportunities/%s/play/%d/stage/%s", url.PathEscape(opportunityID), playID, url.PathEscape(stageKey))
	err := c.do(ctx, http.MethodPatch, endpoint, u, &resp)
	return resp, err
}

func playIDStrings(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprint(id))
	}
	return out
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
