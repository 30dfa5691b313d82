package delegateguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the DelegateGuard REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ProposedAction describes the on-chain action submitted for authorization.
// Value and TokenAmount are decimal strings; Payload is 0x-prefixed calldata.
type ProposedAction struct {
	Target      string `json:"target"`
	Value       string `json:"value,omitempty"`
	Payload     string `json:"payload,omitempty"`
	TokenAmount string `json:"token_amount,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
}

// EvaluateRequest is the payload for a policy evaluation.
type EvaluateRequest struct {
	Principal string         `json:"principal"`
	AgentID   string         `json:"agent_id"`
	Action    ProposedAction `json:"action"`
}

// Decision is a single rule's verdict inside an evaluation.
type Decision struct {
	RuleType string         `json:"rule_type"`
	RuleName string         `json:"rule_name"`
	Allowed  bool           `json:"allowed"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EvaluationResult is the aggregated allow/deny verdict.
type EvaluationResult struct {
	ID             string     `json:"id"`
	Principal      string     `json:"principal"`
	AgentID        string     `json:"agent_id"`
	Allowed        bool       `json:"allowed"`
	Decisions      []Decision `json:"decisions"`
	BlockingPolicy string     `json:"blocking_policy,omitempty"`
	BlockingReason string     `json:"blocking_reason,omitempty"`
	EvaluatedAt    time.Time  `json:"evaluated_at"`
}

// ExecutionReport confirms an executed action back to the guard so cooldown
// and anomaly state stay accurate.
type ExecutionReport struct {
	EvaluationID string `json:"evaluation_id,omitempty"`
	Principal    string `json:"principal"`
	AgentID      string `json:"agent_id,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	Amount       string `json:"amount,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  string `json:"block_number,omitempty"`
	Status       string `json:"status,omitempty"`
	ExecutedAt   int64  `json:"executed_at,omitempty"`
}

// SecurityAlert mirrors the guard's anomaly alerts.
type SecurityAlert struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	Principal    string    `json:"principal,omitempty"`
	TriggerCount int       `json:"trigger_count"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("delegateguard api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the DelegateGuard API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Evaluate submits a proposed action for authorization.
func (c *Client) Evaluate(ctx context.Context, request EvaluateRequest) (EvaluationResult, error) {
	var result EvaluationResult
	if err := c.post(ctx, "/api/v1/evaluate", request, &result); err != nil {
		return EvaluationResult{}, err
	}
	return result, nil
}

// PutPolicy stores a policy document for the principal. The document is an
// arbitrary JSON-marshalable value matching the policy schema.
func (c *Client) PutPolicy(ctx context.Context, principal string, document any) error {
	endpoint := "/api/v1/policies/" + url.PathEscape(principal)
	return c.doJSON(ctx, http.MethodPut, endpoint, document, nil)
}

// GetPolicy fetches the raw policy document for the principal.
func (c *Client) GetPolicy(ctx context.Context, principal string, out any) error {
	endpoint := "/api/v1/policies/" + url.PathEscape(principal)
	return c.get(ctx, endpoint, out)
}

// ReportExecution confirms a completed execution.
func (c *Client) ReportExecution(ctx context.Context, report ExecutionReport) error {
	return c.post(ctx, "/api/v1/executions", report, nil)
}

// ActiveAlerts lists the guard's currently active security alerts.
func (c *Client) ActiveAlerts(ctx context.Context) ([]SecurityAlert, error) {
	var alerts []SecurityAlert
	if err := c.get(ctx, "/api/v1/alerts", &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	return c.doJSON(ctx, http.MethodPost, endpoint, payload, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
