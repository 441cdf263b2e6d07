// Package client provides a Go client library for the Inkwell API server.
package client

import (
	"bufio"
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

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

// Client communicates with the Inkwell API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Inkwell API client pointing at the given base URL
// (e.g. "http://localhost:7117").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsQuotaExceeded reports whether the server ran out of storage.
func IsQuotaExceeded(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusInsufficientStorage
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// doRequest builds and executes an HTTP request with a raw body.
func (c *Client) doRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// checkResponse turns a non-2xx response into an *APIError.
func checkResponse(resp *http.Response, respBody []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var envelope v1.ErrorResponse
	msg := string(respBody)
	if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != "" {
		msg = envelope.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// doJSON executes a request, checks for a 2xx status, and JSON-decodes
// the response body into target (when target is non-nil).
// If body is non-nil it is JSON-encoded and sent as the request body.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, target interface{}) error {
	var (
		reqBody     io.Reader
		contentType string
	)
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
		contentType = "application/json"
	}

	resp, err := c.doRequest(ctx, method, path, contentType, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := checkResponse(resp, respBody); err != nil {
		return err
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

func keyPath(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(parts, "/")
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Healthz checks whether the API server is healthy.
func (c *Client) Healthz(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Status returns the storage service state.
func (c *Client) Status(ctx context.Context) (*v1.Status, error) {
	var out v1.Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Migrate runs the legacy migration if it is still needed.
func (c *Client) Migrate(ctx context.Context) (*v1.MigrationReport, error) {
	var out v1.MigrationReport
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/migrate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events streams service events until ctx is cancelled or the server
// closes the stream. The returned channel is closed when streaming stops.
func (c *Client) Events(ctx context.Context) (<-chan v1.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/events", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client's timeout would cut the stream.
	resp, err := (&http.Client{Transport: c.httpClient.Transport}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, checkResponse(resp, body)
	}

	ch := make(chan v1.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var evt v1.Event
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// GetItem returns the value at key. consistent asks the server to read the
// durable store when its cache has not seen the key yet.
func (c *Client) GetItem(ctx context.Context, key string, consistent bool) (string, bool, error) {
	path := keyPath("/api/v1/items", key)
	if consistent {
		path += "?consistent=true"
	}
	var out v1.Item
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return out.Value, true, nil
}

// SetItem stores value at key. wait blocks until the durable write is done.
func (c *Client) SetItem(ctx context.Context, key, value string, wait bool) error {
	path := keyPath("/api/v1/items", key)
	if wait {
		path += "?wait=true"
	}
	resp, err := c.doRequest(ctx, http.MethodPut, path, "text/plain", strings.NewReader(value))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return checkResponse(resp, body)
}

// RemoveItem deletes key.
func (c *Client) RemoveItem(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, keyPath("/api/v1/items", key), nil, nil)
}

// Keys lists the keys starting with prefix.
func (c *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	path := "/api/v1/items"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	var out v1.KeyList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// Clear deletes every key starting with prefix, or every key when prefix
// is empty.
func (c *Client) Clear(ctx context.Context, prefix string) error {
	path := "/api/v1/items"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// ListProjects returns every project id.
func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	var out v1.ProjectList
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// CreateProject stores data under a new server-assigned id.
func (c *Client) CreateProject(ctx context.Context, data string) (*v1.Project, error) {
	var out v1.Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/projects", v1.Project{Data: data}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveProject upserts project id.
func (c *Client) SaveProject(ctx context.Context, id, data string) (*v1.Project, error) {
	var out v1.Project
	path := "/api/v1/projects/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodPut, path, v1.Project{ID: id, Data: data}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProject retrieves a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (*v1.Project, error) {
	var out v1.Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject deletes a project by id.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/projects/"+url.PathEscape(id), nil, nil)
}

// ---------------------------------------------------------------------------
// Blobs
// ---------------------------------------------------------------------------

// ListBlobs returns every blob key.
func (c *Client) ListBlobs(ctx context.Context) ([]string, error) {
	var out v1.BlobList
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/blobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// PutBlob uploads data under key.
func (c *Client) PutBlob(ctx context.Context, key string, data []byte, mimeType string) error {
	resp, err := c.doRequest(ctx, http.MethodPut, keyPath("/api/v1/blobs", key), mimeType, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return checkResponse(resp, body)
}

// GetBlob downloads the blob at key and its MIME type.
func (c *Client) GetBlob(ctx context.Context, key string) ([]byte, string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, keyPath("/api/v1/blobs", key), "", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response body: %w", err)
	}
	if err := checkResponse(resp, body); err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// DeleteBlob deletes the blob at key.
func (c *Client) DeleteBlob(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, keyPath("/api/v1/blobs", key), nil, nil)
}
