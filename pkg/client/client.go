package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ladleio/ladle/pkg/api"
	"github.com/ladleio/ladle/pkg/publisher"
	"github.com/ladleio/ladle/pkg/types"
)

// Client talks to a ladle API server. Scraper processes link against
// this package instead of hand-rolling HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API server at baseURL
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api answered %d: %s", e.StatusCode, e.Message)
}

// Submit admits one scraped payload. A deduplicated result means the
// server has already seen these exact bytes and no new job was queued.
func (c *Client) Submit(ctx context.Context, payload []byte, meta types.SourceMetadata) (*api.SubmitResponse, error) {
	req := api.SubmitRequest{
		Payload:   payload,
		ScraperID: meta.ScraperID,
		SourceURL: meta.SourceURL,
		ScrapedAt: meta.ScrapedAt,
	}
	var resp api.SubmitResponse
	if err := c.post(ctx, "/api/v1/payloads", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns content store counters and queue depths
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var resp api.StatsResponse
	if err := c.get(ctx, "/api/v1/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Publish triggers one synchronous publish cycle and waits for it
func (c *Client) Publish(ctx context.Context) (*publisher.CycleRecord, error) {
	var rec publisher.CycleRecord
	if err := c.post(ctx, "/api/v1/publish", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Healthz reports dependency health. The response parses for both the
// healthy and unhealthy status codes; callers read Status and Checks.
func (c *Client) Healthz(ctx context.Context) (*api.HealthzResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusServiceUnavailable {
		return nil, c.errorFrom(httpResp)
	}

	var resp api.HealthzResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFrom(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorFrom drains the error envelope into an APIError. Bodies that
// are not the envelope still produce a usable message.
func (c *Client) errorFrom(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope api.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
