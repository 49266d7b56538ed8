package sbpsdk

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

// Client is a minimal SBP duty plan HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Season represents the API season model.
type Season struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsActive  bool   `json:"is_active"`
	DutyCount int    `json:"duty_count"`
}

// Duty represents the API duty model.
type Duty struct {
	ID        string  `json:"id"`
	SeasonID  string  `json:"season_id"`
	Date      string  `json:"date"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Type      string  `json:"type"`
	Formation string  `json:"formation"`
	Status    string  `json:"status"`
	Program   string  `json:"program,omitempty"`
	Venue     string  `json:"venue,omitempty"`
	Conductor string  `json:"conductor,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

// Violation is one finding against the tariff rules.
type Violation struct {
	RuleID        string   `json:"rule_id"`
	Severity      string   `json:"severity"`
	Message       string   `json:"message"`
	Clause        string   `json:"clause,omitempty"`
	AffectedDates []string `json:"affected_dates,omitempty"`
	Suggestion    string   `json:"suggestion,omitempty"`
}

// ValidationResult is the outcome of validating a single candidate duty.
type ValidationResult struct {
	Status        string      `json:"status"`
	WeekStart     string      `json:"week_start"`
	WeekEnd       string      `json:"week_end"`
	TotalWeighted float64     `json:"total_weighted"`
	Limit         float64     `json:"limit"`
	Provisional   bool        `json:"provisional"`
	Violations    []Violation `json:"violations"`
}

// GeneratedPlan is one generation run (partial).
type GeneratedPlan struct {
	ID              string                  `json:"id"`
	PlanStart       string                  `json:"plan_start"`
	PlanEnd         string                  `json:"plan_end"`
	Status          string                  `json:"status"`
	ErrorCause      string                  `json:"error_cause,omitempty"`
	IndividualCount int                     `json:"individual_count"`
	CreatedAt       string                  `json:"created_at"`
	Individuals     []IndividualPlanSummary `json:"individuals,omitempty"`
}

// IndividualPlanSummary is one member's slice of a generated plan.
type IndividualPlanSummary struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	DisplayName  string `json:"display_name"`
	IsVacant     bool   `json:"is_vacant"`
	HasDoc       bool   `json:"has_doc"`
	HasPDF       bool   `json:"has_pdf"`
	FailureCause string `json:"failure_cause,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	SeasonID   string `json:"season_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateSeason creates a season.
func (c *Client) CreateSeason(ctx context.Context, name, startDate, endDate string, activate bool) (Season, error) {
	body := map[string]any{
		"name":       name,
		"start_date": startDate,
		"end_date":   endDate,
		"is_active":  activate,
	}
	var resp Season
	err := c.do(ctx, http.MethodPost, "v1/seasons", body, &resp)
	return resp, err
}

// ListSeasons returns all seasons.
func (c *Client) ListSeasons(ctx context.Context) ([]Season, error) {
	var resp []Season
	err := c.do(ctx, http.MethodGet, "v1/seasons", nil, &resp)
	return resp, err
}

// CreateDuty saves a duty.
func (c *Client) CreateDuty(ctx context.Context, duty Duty) (Duty, error) {
	var resp Duty
	err := c.do(ctx, http.MethodPost, "v1/duties", duty, &resp)
	return resp, err
}

// ListDuties returns duties, optionally filtered by season and date range.
func (c *Client) ListDuties(ctx context.Context, seasonID, from, to string) ([]Duty, error) {
	q := url.Values{}
	if seasonID != "" {
		q.Set("season_id", seasonID)
	}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	endpoint := "v1/duties"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Duty
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DeleteDuty removes a duty.
func (c *Client) DeleteDuty(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v1/duties/"+url.PathEscape(id), nil, nil)
}

// ValidateDuty checks a candidate duty against the tariff rules without
// saving it. Pass the duty's id to validate an edit of an existing duty.
func (c *Client) ValidateDuty(ctx context.Context, duty Duty) (ValidationResult, error) {
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, "v1/validations", duty, &resp)
	return resp, err
}

// ValidateRange audits every saved duty in a date range.
func (c *Client) ValidateRange(ctx context.Context, seasonID, from, to string) ([]Violation, error) {
	q := url.Values{}
	if seasonID != "" {
		q.Set("season_id", seasonID)
	}
	q.Set("from", from)
	q.Set("to", to)
	var resp []Violation
	err := c.do(ctx, http.MethodGet, "v1/validations?"+q.Encode(), nil, &resp)
	return resp, err
}

// CreatePlan schedules a generation run and returns the pending plan.
func (c *Client) CreatePlan(ctx context.Context, seasonID, from, to string) (GeneratedPlan, error) {
	body := map[string]any{}
	if seasonID != "" {
		body["season_id"] = seasonID
	}
	if from != "" {
		body["from"] = from
	}
	if to != "" {
		body["to"] = to
	}
	var resp GeneratedPlan
	err := c.do(ctx, http.MethodPost, "v1/plans", body, &resp)
	return resp, err
}

// GetPlan fetches a plan with its member summaries.
func (c *Client) GetPlan(ctx context.Context, id string) (GeneratedPlan, error) {
	var resp GeneratedPlan
	err := c.do(ctx, http.MethodGet, "v1/plans/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListPlans returns recent plans.
func (c *Client) ListPlans(ctx context.Context, limit int) ([]GeneratedPlan, error) {
	endpoint := "v1/plans"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []GeneratedPlan
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WaitForPlan polls a plan until it leaves the pending and generating states.
func (c *Client) WaitForPlan(ctx context.Context, id string, interval time.Duration) (GeneratedPlan, error) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		gp, err := c.GetPlan(ctx, id)
		if err != nil {
			return gp, err
		}
		if gp.Status != "pending" && gp.Status != "generating" {
			return gp, nil
		}
		select {
		case <-ctx.Done():
			return gp, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// CollectiveArtifact downloads the collective document ("doc" or "pdf").
func (c *Client) CollectiveArtifact(ctx context.Context, planID, kind string) ([]byte, error) {
	endpoint := fmt.Sprintf("v1/plans/%s/artifacts/%s", url.PathEscape(planID), url.PathEscape(kind))
	return c.download(ctx, endpoint)
}

// IndividualArtifact downloads one member's document ("doc" or "pdf").
func (c *Client) IndividualArtifact(ctx context.Context, planID, individualID, kind string) ([]byte, error) {
	endpoint := fmt.Sprintf("v1/plans/%s/individuals/%s/artifacts/%s",
		url.PathEscape(planID), url.PathEscape(individualID), url.PathEscape(kind))
	return c.download(ctx, endpoint)
}

// Events returns recent audit log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) download(ctx context.Context, endpoint string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	return c.HTTPClient.Do(req)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
