package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// Client talks to the n8n REST API using the user's API key.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client for one n8n instance.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Factory adapts NewClient to the ports.ClientFactory signature.
func Factory(baseURL, apiKey string) ports.AutomationClient {
	return NewClient(baseURL, apiKey)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-N8N-API-KEY", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call n8n API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("n8n API returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// listEnvelope is the {"data": [...]} shape n8n wraps collections in.
type listEnvelope struct {
	Data []map[string]any `json:"data"`
}

func (c *Client) ListWorkflows(ctx context.Context, activeOnly bool) ([]map[string]any, error) {
	path := "/api/v1/workflows"
	if activeOnly {
		path += "?active=true"
	}

	var envelope listEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (c *Client) GetWorkflow(ctx context.Context, id string) (map[string]any, error) {
	var workflow map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/v1/workflows/"+url.PathEscape(id), nil, &workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (c *Client) CreateWorkflow(ctx context.Context, definition map[string]any) (map[string]any, error) {
	var created map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/v1/workflows", definition, &created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) ActivateWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/workflows/"+url.PathEscape(id)+"/activate", nil, nil)
}

func (c *Client) DeactivateWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/workflows/"+url.PathEscape(id)+"/deactivate", nil, nil)
}

func (c *Client) ListExecutions(ctx context.Context, workflowID string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if workflowID != "" {
		query.Set("workflowId", workflowID)
	}

	var envelope listEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/executions?"+query.Encode(), nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// HealthCheck uses the unauthenticated healthz endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

var _ ports.AutomationClient = (*Client)(nil)
