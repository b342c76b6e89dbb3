package alchemistsdk

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

// Client is a minimal Data Alchemist HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
	}
}

// Record is one raw client, worker or task record. Keys may use any of the
// header aliases accepted by file upload.
type Record map[string]any

// Data groups raw records per collection.
type Data struct {
	Clients []Record `json:"clients,omitempty"`
	Workers []Record `json:"workers,omitempty"`
	Tasks   []Record `json:"tasks,omitempty"`
}

// Finding is one data-quality observation.
type Finding struct {
	ID         string `json:"id"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Field      string `json:"field"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Check      string `json:"check"`
	Timestamp  string `json:"timestamp"`
}

// Counts tallies findings by severity.
type Counts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
	Total    int `json:"total"`
}

// Report is a list of findings with its counts.
type Report struct {
	Findings []Finding `json:"findings"`
	Summary  Counts    `json:"summary"`
}

// RecordFindings is the result of editing one record.
type RecordFindings struct {
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Findings   []Finding `json:"findings"`
}

// Rule is the flat form of a business rule.
type Rule struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	Description      string   `json:"description,omitempty"`
	Type             string   `json:"type"`
	Active           *bool    `json:"active,omitempty"`
	Tasks            []string `json:"tasks,omitempty"`
	Workers          []string `json:"workers,omitempty"`
	Clients          []string `json:"clients,omitempty"`
	GroupKind        string   `json:"groupKind,omitempty"`
	MinCommonSlots   int      `json:"minCommonSlots,omitempty"`
	MaxSlotsPerPhase int      `json:"maxSlotsPerPhase,omitempty"`
	Phases           []int    `json:"phases,omitempty"`
	TaskID           string   `json:"taskId,omitempty"`
	AllowedPhases    []int    `json:"allowedPhases,omitempty"`
	Strict           bool     `json:"strict,omitempty"`
	Pattern          string   `json:"pattern,omitempty"`
	Conditions       string   `json:"conditions,omitempty"`
}

// RulesResult lists the stored rules and their findings.
type RulesResult struct {
	Rules    []Rule    `json:"rules"`
	Findings []Finding `json:"findings"`
	Summary  Counts    `json:"summary"`
}

// Weights are the prioritization sliders.
type Weights struct {
	PriorityLevel float64 `json:"priorityLevel"`
	Fulfillment   float64 `json:"fulfillment"`
	Fairness      float64 `json:"fairness"`
	Efficiency    float64 `json:"efficiency"`
	SkillMatch    float64 `json:"skillMatch"`
}

// Comparison is one pairwise preference on a -3..3 scale; negative favors First.
type Comparison struct {
	First      string `json:"first"`
	Second     string `json:"second"`
	Preference int    `json:"preference,omitempty"`
}

type WeightsResult struct {
	Weights    Weights `json:"weights"`
	Normalized Weights `json:"normalized"`
}

// FindingFilter narrows ListFindings. Empty fields match everything.
type FindingFilter struct {
	EntityType string
	EntityID   string
	Field      string
	Severity   string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Validate runs the full validation pass without touching the session.
func (c *Client) Validate(ctx context.Context, data Data, basicOnly bool) (Report, error) {
	endpoint := "validate"
	if basicOnly {
		endpoint += "?basic=true"
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, endpoint, data, &resp)
	return resp, err
}

// ValidateEntity runs the basic checks for one collection of data.
func (c *Client) ValidateEntity(ctx context.Context, entityType string, data Data) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "validate/"+url.PathEscape(entityType), data, &resp)
	return resp, err
}

// ReplaceCollection replaces one session collection and returns the new findings.
func (c *Client) ReplaceCollection(ctx context.Context, entityType string, records []Record) (Report, error) {
	if records == nil {
		records = []Record{}
	}
	var resp Report
	err := c.do(ctx, http.MethodPut, "session/"+url.PathEscape(entityType), map[string]any{"records": records}, &resp)
	return resp, err
}

// UpdateRecord replaces one session record addressed by id.
func (c *Client) UpdateRecord(ctx context.Context, entityType, id string, record Record) (RecordFindings, error) {
	var resp RecordFindings
	endpoint := fmt.Sprintf("session/%s/%s", url.PathEscape(entityType), url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, record, &resp)
	return resp, err
}

// ListFindings lists session findings.
func (c *Client) ListFindings(ctx context.Context, flt FindingFilter) (Report, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"entity_type": flt.EntityType,
		"entity_id":   flt.EntityID,
		"field":       flt.Field,
		"severity":    flt.Severity,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "session/findings"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Report
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DismissFinding removes one finding from the session list.
func (c *Client) DismissFinding(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "session/findings/"+url.PathEscape(id), nil, nil)
}

// PutRules replaces the session business rules.
func (c *Client) PutRules(ctx context.Context, rules []Rule) (RulesResult, error) {
	if rules == nil {
		rules = []Rule{}
	}
	var resp RulesResult
	err := c.do(ctx, http.MethodPut, "session/rules", map[string]any{"rules": rules}, &resp)
	return resp, err
}

// CheckRules evaluates the stored rules.
func (c *Client) CheckRules(ctx context.Context) (RulesResult, error) {
	var resp RulesResult
	err := c.do(ctx, http.MethodGet, "session/rules/check", nil, &resp)
	return resp, err
}

// PutWeights replaces the prioritization weights.
func (c *Client) PutWeights(ctx context.Context, w Weights) (WeightsResult, error) {
	var resp WeightsResult
	err := c.do(ctx, http.MethodPut, "session/weights", w, &resp)
	return resp, err
}

// RankWeights derives weights from all five criteria ordered by importance.
func (c *Client) RankWeights(ctx context.Context, order []string) (WeightsResult, error) {
	var resp WeightsResult
	err := c.do(ctx, http.MethodPost, "session/weights/ranking", map[string]any{"order": order}, &resp)
	return resp, err
}

// PairwiseWeights derives weights from pairwise comparisons.
func (c *Client) PairwiseWeights(ctx context.Context, list []Comparison) (WeightsResult, error) {
	var resp WeightsResult
	err := c.do(ctx, http.MethodPost, "session/weights/pairwise", map[string]any{"comparisons": list}, &resp)
	return resp, err
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
	resp, err := c.HTTPClient.Do(req)
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

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
