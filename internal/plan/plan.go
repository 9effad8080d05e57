// Package plan talks to an external shopping-plan service that maps a
// shopping list to canonical product URLs ahead of time. The service
// is optional infrastructure: callers fall back to search-driven
// automation whenever Resolve fails.
package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cartpilot/cartpilot/internal/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a plan-service client, or nil when no service URL
// is configured. A nil *Client is safe; Resolve reports unavailability.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type resolveRequest struct {
	Retailer types.Retailer       `json:"retailer"`
	Items    []types.ShoppingItem `json:"items"`
}

// Resolve asks the service for an add plan. Any failure, including an
// unconfigured client, surfaces as an error so the caller can degrade
// to search-based automation.
func (c *Client) Resolve(ctx context.Context, retailer types.Retailer, items []types.ShoppingItem) (*types.AddPlan, error) {
	if c == nil {
		return nil, fmt.Errorf("no plan service configured")
	}

	requestBody, err := json.Marshal(resolveRequest{Retailer: retailer, Items: items})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/plan", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create plan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plan service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("plan service returned status %d: %s", resp.StatusCode, string(body))
	}

	var p types.AddPlan
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan response: %w", err)
	}
	if p.Retailer == "" {
		p.Retailer = retailer
	}
	return &p, nil
}
