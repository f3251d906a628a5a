// internal/api/client.go
package api

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

	"github.com/OCAP2/mapsync/pkg/core"
)

// DefaultActorHeader carries the actor unless WithActorHeader picks another.
const DefaultActorHeader = "X-User"

// ErrNotFound is returned when the server has no marker with the given id.
var ErrNotFound = errors.New("marker not found")

// StatusError reports an unexpected response status.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Op, e.Code)
}

// Client handles communication with the map server.
type Client struct {
	baseURL     string
	actor       string
	actorHeader string
	httpClient  *http.Client
}

// New creates a new API client. actor is sent with every mutation for
// attribution in the audit trail.
func New(baseURL, actor string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		actor:       actor,
		actorHeader: DefaultActorHeader,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// WithActorHeader sends the actor in header h instead. It must match the
// server's actorHeader. An empty h keeps the current header.
func (c *Client) WithActorHeader(h string) *Client {
	if h != "" {
		c.actorHeader = h
	}
	return c
}

// Healthcheck checks if the map server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "healthcheck", Code: resp.StatusCode}
	}
	return nil
}

// FetchSnapshot downloads the full marker collection.
func (c *Client) FetchSnapshot(ctx context.Context) (core.Collection, error) {
	resp, err := c.do(ctx, http.MethodGet, "/data", nil)
	if err != nil {
		return core.Collection{}, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Collection{}, &StatusError{Op: "fetch", Code: resp.StatusCode}
	}

	var snapshot core.Collection
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return core.Collection{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snapshot.Normalize()
	return snapshot, nil
}

// CreateMarker submits a new marker and returns the stored record.
func (c *Client) CreateMarker(ctx context.Context, f core.Fields) (core.Marker, error) {
	return c.sendMarker(ctx, "create", http.MethodPost, "/markers", f)
}

// PatchMarker updates the fields present in f.
func (c *Client) PatchMarker(ctx context.Context, id string, f core.Fields) (core.Marker, error) {
	return c.sendMarker(ctx, "patch", http.MethodPatch, "/markers/"+url.PathEscape(id), f)
}

// DeleteMarker removes a marker.
func (c *Client) DeleteMarker(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/markers/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Op: "delete", Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) sendMarker(ctx context.Context, op, method, path string, f core.Fields) (core.Marker, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return core.Marker{}, fmt.Errorf("failed to encode %s body: %w", op, err)
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return core.Marker{}, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.Marker{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return core.Marker{}, &StatusError{Op: op, Code: resp.StatusCode}
	}

	var m core.Marker
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return core.Marker{}, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return m, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(c.actorHeader, c.actor)
	}
	return c.httpClient.Do(req)
}
