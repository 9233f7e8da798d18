package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vivek100/dashwizard/internal/schema"
)

// HTTPClient talks JSON over HTTP to the dashboard service.
type HTTPClient struct {
	baseURL string
	session SessionProvider
	client  *http.Client
}

// NewHTTPClient creates a client for the service at baseURL.
// If httpClient is nil a default with a 15s timeout is used.
func NewHTTPClient(baseURL string, session SessionProvider, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL: baseURL,
		session: session,
		client:  httpClient,
	}
}

// FetchUserDashboards implements Client.
func (c *HTTPClient) FetchUserDashboards(ctx context.Context) ([]schema.Dashboard, error) {
	var out []schema.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/dashboards", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchTemplates implements Client.
func (c *HTTPClient) FetchTemplates(ctx context.Context) ([]schema.Dashboard, error) {
	var out []schema.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateDashboard implements Client.
func (c *HTTPClient) CreateDashboard(ctx context.Context, d schema.Dashboard) error {
	return c.do(ctx, http.MethodPost, "/api/dashboards", d, nil)
}

// UpdateDashboard implements Client.
func (c *HTTPClient) UpdateDashboard(ctx context.Context, d schema.Dashboard) error {
	return c.do(ctx, http.MethodPut, "/api/dashboards/"+url.PathEscape(d.ID), d, nil)
}

// DeleteDashboard implements Client.
func (c *HTTPClient) DeleteDashboard(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/dashboards/"+url.PathEscape(id), nil, nil)
	if httpErr, ok := err.(*StatusError); ok && httpErr.Code == http.StatusNotFound {
		// Already gone remotely; the delete is settled.
		return nil
	}
	return err
}

// Ping implements Client.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// StatusError is a non-2xx response from the remote service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d: %s", e.Code, e.Body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	if c.session != nil && !c.session.HasSession() {
		return ErrNoSession
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		req.Header.Set("Authorization", "Bearer "+c.session.Token())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport-level failure: connectivity, DNS, timeout.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
